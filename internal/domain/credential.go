package domain

import (
	"context"
	"time"
)

// RestoreCredential is the single-use secret the portal issues for headless
// session restoration, together with the source descriptor it was issued for.
//
// The Secret field must never be logged, included in error messages, or
// serialized anywhere except inside the vault.
type RestoreCredential struct {
	Secret   string      `json:"secret"`
	Kind     SourceKind  `json:"kind"`
	Persist  PersistMode `json:"persist"`
	IssuedAt time.Time   `json:"issued_at"`
}

// CredentialVault is durable, encrypted-at-rest storage for restore
// credentials, keyed by source id. At most one live credential exists per
// source id at any time.
//
// Implementations must allow concurrent readers and serialize writers, and
// must never hold their internal lock across portal or frame-source I/O.
type CredentialVault interface {
	// Store persists credential under sourceID, overwriting any prior record.
	Store(ctx context.Context, sourceID string, credential RestoreCredential) error

	// Retrieve returns the credential for sourceID, or (nil, nil) when no
	// record exists. A corrupt or foreign record yields ErrDecryptionFailed.
	Retrieve(ctx context.Context, sourceID string) (*RestoreCredential, error)

	// Delete removes the record for sourceID and reports whether one existed.
	Delete(ctx context.Context, sourceID string) (bool, error)

	// Rotate replaces the record for sourceID with newCredential. The new
	// value is durably written before the previous record is considered
	// superseded: if the write fails the old record is left untouched.
	Rotate(ctx context.Context, sourceID string, newCredential RestoreCredential) error

	// ListSourceIDs enumerates known source ids without decrypting values.
	ListSourceIDs(ctx context.Context) ([]string, error)
}
