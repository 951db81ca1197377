package managers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/captura-dev/captura/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

// indexEntryKey is the reserved keyring entry holding the JSON list of known
// source ids. The OS keyring API cannot enumerate entries, so the backend
// maintains its own index.
const indexEntryKey = "__captura_source_index__"

// SystemKeyring is the narrow slice of the OS secret store the vault needs.
// The default implementation delegates to the platform keyring; tests inject
// fakes.
type SystemKeyring interface {
	Set(service, key, value string) error
	Get(service, key string) (string, error)
	Delete(service, key string) error
}

// ErrKeyringEntryNotFound is what implementations return for a missing entry.
var ErrKeyringEntryNotFound = keyring.ErrNotFound

type osKeyring struct{}

// NewSystemKeyring returns the platform OS secret store (Secret Service on
// Linux, Keychain on macOS, Credential Manager on Windows).
func NewSystemKeyring() SystemKeyring {
	return osKeyring{}
}

func (osKeyring) Set(service, key, value string) error { return keyring.Set(service, key, value) }

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }

func (osKeyring) Delete(service, key string) error { return keyring.Delete(service, key) }

// keyringVaultBackend stores credentials as plaintext keyring entries; the
// OS store supplies its own at-rest protection and unlock policy.
type keyringVaultBackend struct {
	ring    SystemKeyring
	service string
}

func newKeyringVaultBackend(ring SystemKeyring, service string) *keyringVaultBackend {
	return &keyringVaultBackend{ring: ring, service: service}
}

func (b *keyringVaultBackend) name() string {
	return "keyring"
}

// probe verifies the secret store actually works with a throwaway
// write/read/delete round trip. Called exactly once per process.
func (b *keyringVaultBackend) probe() error {
	const probeKey = "__captura_probe__"
	if err := b.ring.Set(b.service, probeKey, "ok"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVaultUnavailable, err)
	}
	if _, err := b.ring.Get(b.service, probeKey); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVaultUnavailable, err)
	}
	if err := b.ring.Delete(b.service, probeKey); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVaultUnavailable, err)
	}
	return nil
}

func (b *keyringVaultBackend) store(ctx context.Context, sourceID string, credential domain.RestoreCredential) error {
	payload, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("%w: encode credential: %v", domain.ErrIO, err)
	}
	if err := b.ring.Set(b.service, sourceID, string(payload)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return b.addToIndex(sourceID)
}

func (b *keyringVaultBackend) retrieve(ctx context.Context, sourceID string) (*domain.RestoreCredential, error) {
	payload, err := b.ring.Get(b.service, sourceID)
	if errors.Is(err, ErrKeyringEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	var credential domain.RestoreCredential
	if err := json.Unmarshal([]byte(payload), &credential); err != nil {
		return nil, fmt.Errorf("%w: decode credential: %v", domain.ErrDecryptionFailed, err)
	}
	return &credential, nil
}

func (b *keyringVaultBackend) remove(ctx context.Context, sourceID string) (bool, error) {
	err := b.ring.Delete(b.service, sourceID)
	if errors.Is(err, ErrKeyringEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	// The credential is gone; a failed index update costs one stale listing
	// entry, never a secret, so the deletion still counts as a success.
	if err := b.removeFromIndex(sourceID); err != nil {
		log.Warn().Err(err).Str("source_id", sourceID).Msg("Failed to update source index after delete")
	}
	return true, nil
}

func (b *keyringVaultBackend) listSourceIDs(ctx context.Context) ([]string, error) {
	return b.readIndex()
}

func (b *keyringVaultBackend) readIndex() ([]string, error) {
	payload, err := b.ring.Get(b.service, indexEntryKey)
	if errors.Is(err, ErrKeyringEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	var ids []string
	if err := json.Unmarshal([]byte(payload), &ids); err != nil {
		return nil, fmt.Errorf("%w: decode source index: %v", domain.ErrIO, err)
	}
	return ids, nil
}

func (b *keyringVaultBackend) writeIndex(ids []string) error {
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("%w: encode source index: %v", domain.ErrIO, err)
	}
	if err := b.ring.Set(b.service, indexEntryKey, string(payload)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return nil
}

func (b *keyringVaultBackend) addToIndex(sourceID string) error {
	ids, err := b.readIndex()
	if err != nil {
		return err
	}
	if slices.Contains(ids, sourceID) {
		return nil
	}
	ids = append(ids, sourceID)
	slices.Sort(ids)
	return b.writeIndex(ids)
}

func (b *keyringVaultBackend) removeFromIndex(sourceID string) error {
	ids, err := b.readIndex()
	if err != nil {
		return err
	}
	filtered := slices.DeleteFunc(ids, func(id string) bool { return id == sourceID })
	return b.writeIndex(filtered)
}
