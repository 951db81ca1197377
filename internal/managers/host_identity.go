package managers

import (
	"bytes"
	"fmt"
	"os"
	"os/user"
)

var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// hostIdentityMaterial assembles stable machine/user identity bytes for key
// derivation. Records encrypted on one host under one user are undecryptable
// anywhere else; the vault reports that as ErrDecryptionFailed, which the
// broker treats as "no credential".
func hostIdentityMaterial() ([]byte, error) {
	var machineID []byte
	for _, path := range machineIDPaths {
		data, err := os.ReadFile(path)
		if err == nil && len(bytes.TrimSpace(data)) > 0 {
			machineID = bytes.TrimSpace(data)
			break
		}
	}
	if machineID == nil {
		// Containers and non-Linux hosts may not carry a machine-id.
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("no machine identity available: %w", err)
		}
		machineID = []byte(hostname)
	}

	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolve current user: %w", err)
	}

	material := make([]byte, 0, len(machineID)+len(u.Uid)+len(u.Username)+2)
	material = append(material, machineID...)
	material = append(material, 0x00)
	material = append(material, []byte(u.Uid)...)
	material = append(material, 0x00)
	material = append(material, []byte(u.Username)...)
	return material, nil
}
