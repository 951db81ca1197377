package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/captura-dev/captura/internal/domain"
	"github.com/captura-dev/captura/internal/storage"

	"github.com/rs/zerolog/log"
)

// credentialBackend is the storage strategy behind the vault facade.
type credentialBackend interface {
	name() string
	store(ctx context.Context, sourceID string, credential domain.RestoreCredential) error
	retrieve(ctx context.Context, sourceID string) (*domain.RestoreCredential, error)
	remove(ctx context.Context, sourceID string) (bool, error)
	listSourceIDs(ctx context.Context) ([]string, error)
}

type CredentialVaultDependencies struct {
	Keyring        SystemKeyring
	KeyringService string
	Records        *storage.RecordRepo

	// IdentityMaterial overrides the host-derived key material. Tests only;
	// production callers leave it nil.
	IdentityMaterial []byte
}

// credentialVault selects its backend once per process (OS secret store if a
// probe succeeds, encrypted file otherwise) and guards all record access with
// a reader/writer lock. The lock covers the sub-millisecond crypto and local
// record write; portal and frame I/O never happen under it.
type credentialVault struct {
	keyringBackend *keyringVaultBackend
	fileBackend    *fileVaultBackend

	selectOnce sync.Once
	backend    credentialBackend

	mu sync.RWMutex
}

// NewCredentialVault builds the vault. Backend selection is deferred to the
// first operation so that constructing the vault never triggers an OS
// permission prompt.
func NewCredentialVault(deps CredentialVaultDependencies) (domain.CredentialVault, error) {
	identity := deps.IdentityMaterial
	if identity == nil {
		var err error
		identity, err = hostIdentityMaterial()
		if err != nil {
			return nil, fmt.Errorf("resolve host identity: %w", err)
		}
	}

	cipher, err := newEnvelopeCipher(identity)
	if err != nil {
		return nil, err
	}

	return &credentialVault{
		keyringBackend: newKeyringVaultBackend(deps.Keyring, deps.KeyringService),
		fileBackend:    newFileVaultBackend(deps.Records, cipher),
	}, nil
}

// selectBackend probes the OS secret store exactly once per process and
// caches the outcome forever. Re-probing would re-trigger permission prompts
// on desktops that gate keyring access interactively.
func (v *credentialVault) selectBackend() credentialBackend {
	v.selectOnce.Do(func() {
		if err := v.keyringBackend.probe(); err != nil {
			// ErrVaultUnavailable is absorbed here; callers never see it.
			log.Warn().Err(err).Msg("OS secret store unusable, using encrypted file backend for this process")
			v.backend = v.fileBackend
			return
		}
		v.backend = v.keyringBackend
	})
	return v.backend
}

func (v *credentialVault) Store(ctx context.Context, sourceID string, credential domain.RestoreCredential) error {
	backend := v.selectBackend()

	v.mu.Lock()
	defer v.mu.Unlock()
	return backend.store(ctx, sourceID, credential)
}

func (v *credentialVault) Retrieve(ctx context.Context, sourceID string) (*domain.RestoreCredential, error) {
	backend := v.selectBackend()

	v.mu.RLock()
	defer v.mu.RUnlock()
	return backend.retrieve(ctx, sourceID)
}

func (v *credentialVault) Delete(ctx context.Context, sourceID string) (bool, error) {
	backend := v.selectBackend()

	v.mu.Lock()
	defer v.mu.Unlock()
	return backend.remove(ctx, sourceID)
}

// Rotate replaces the record for sourceID. The write is a single atomic
// overwrite: the new value lands durably or the old record stays intact.
// A still-possibly-valid stale credential beats a lost one.
func (v *credentialVault) Rotate(ctx context.Context, sourceID string, newCredential domain.RestoreCredential) error {
	backend := v.selectBackend()

	v.mu.Lock()
	defer v.mu.Unlock()
	return backend.store(ctx, sourceID, newCredential)
}

func (v *credentialVault) ListSourceIDs(ctx context.Context) ([]string, error) {
	backend := v.selectBackend()

	v.mu.RLock()
	defer v.mu.RUnlock()
	return backend.listSourceIDs(ctx)
}
