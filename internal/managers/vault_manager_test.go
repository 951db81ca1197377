package managers

import (
	"context"
	"crypto/rand"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/captura-dev/captura/internal/domain"
	"github.com/captura-dev/captura/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyring struct {
	mu              sync.Mutex
	entries         map[string]string
	broken          bool
	failWrites      bool
	failIndexWrites bool
	probeSets       int
}

func newFakeKeyring() *fakeKeyring {
	return &fakeKeyring{entries: map[string]string{}}
}

func (f *fakeKeyring) Set(service, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == "__captura_probe__" {
		f.probeSets++
	}
	if f.broken {
		return assert.AnError
	}
	if f.failWrites && key != "__captura_probe__" {
		return assert.AnError
	}
	if f.failIndexWrites && key == indexEntryKey {
		return assert.AnError
	}
	f.entries[service+"\x00"+key] = value
	return nil
}

func (f *fakeKeyring) Get(service, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return "", assert.AnError
	}
	value, ok := f.entries[service+"\x00"+key]
	if !ok {
		return "", ErrKeyringEntryNotFound
	}
	return value, nil
}

func (f *fakeKeyring) Delete(service, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return assert.AnError
	}
	if _, ok := f.entries[service+"\x00"+key]; !ok {
		return ErrKeyringEntryNotFound
	}
	delete(f.entries, service+"\x00"+key)
	return nil
}

func setupRecords(t *testing.T) *storage.RecordRepo {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "credentials.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.RunMigrations(db.Writer))
	return storage.NewRecordRepo(db)
}

func setupVault(t *testing.T, ring SystemKeyring) (domain.CredentialVault, *storage.RecordRepo) {
	t.Helper()
	records := setupRecords(t)
	vault, err := NewCredentialVault(CredentialVaultDependencies{
		Keyring:          ring,
		KeyringService:   "captura-test",
		Records:          records,
		IdentityMaterial: []byte("test-machine\x00test-user"),
	})
	require.NoError(t, err)
	return vault, records
}

func testCredential(secret string) domain.RestoreCredential {
	return domain.RestoreCredential{
		Secret:   secret,
		Kind:     domain.SourceKindMonitor,
		Persist:  domain.PersistUntilRevoked,
		IssuedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestCredentialVault_KeyringRoundTrip(t *testing.T) {
	ring := newFakeKeyring()
	vault, _ := setupVault(t, ring)
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-A")))

	got, err := vault.Retrieve(ctx, "disp1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testCredential("tok-A"), *got)

	ids, err := vault.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"disp1"}, ids)
}

func TestCredentialVault_RetrieveMissingIsNotAnError(t *testing.T) {
	vault, _ := setupVault(t, newFakeKeyring())

	got, err := vault.Retrieve(context.Background(), "never-primed")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialVault_BrokenKeyringFallsBackToFile(t *testing.T) {
	// Scenario: the OS secret store is unusable. The first operation probes
	// it, silently switches to the encrypted file backend, and no later
	// operation probes again.
	ring := newFakeKeyring()
	ring.broken = true
	vault, records := setupVault(t, ring)
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-A")))

	got, err := vault.Retrieve(ctx, "disp1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok-A", got.Secret)

	// The record landed in the file container, not the keyring.
	envelope, err := records.Get(ctx, "disp1")
	require.NoError(t, err)
	assert.NotNil(t, envelope)
	assert.Empty(t, ring.entries)

	_, err = vault.ListSourceIDs(ctx)
	require.NoError(t, err)
	_, err = vault.Delete(ctx, "disp1")
	require.NoError(t, err)

	assert.Equal(t, 1, ring.probeSets, "backend must be probed exactly once per process")
}

func TestCredentialVault_RotateReplacesRecord(t *testing.T) {
	vault, records := setupVault(t, &alwaysBrokenKeyring{})
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-A")))
	require.NoError(t, vault.Rotate(ctx, "disp1", testCredential("tok-B")))

	got, err := vault.Retrieve(ctx, "disp1")
	require.NoError(t, err)
	assert.Equal(t, "tok-B", got.Secret)

	// Exactly one record remains; the superseded envelope is gone.
	ids, err := records.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"disp1"}, ids)
}

func TestCredentialVault_FailedRotationKeepsOldRecord(t *testing.T) {
	ring := newFakeKeyring()
	vault, _ := setupVault(t, ring)
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-A")))

	ring.failWrites = true
	err := vault.Rotate(ctx, "disp1", testCredential("tok-B"))
	require.Error(t, err)

	ring.failWrites = false
	got, err := vault.Retrieve(ctx, "disp1")
	require.NoError(t, err)
	assert.Equal(t, "tok-A", got.Secret, "failed rotation must leave the prior record intact")
}

func TestCredentialVault_ConcurrentRotateAndRetrieve(t *testing.T) {
	vault, _ := setupVault(t, newFakeKeyring())
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-0")))

	written := map[string]bool{"tok-0": true}
	for i := 1; i <= 8; i++ {
		written[fmt.Sprintf("tok-%d", i)] = true
	}

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		secret := fmt.Sprintf("tok-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, vault.Rotate(ctx, "disp1", testCredential(secret)))
		}()
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := vault.Retrieve(ctx, "disp1")
			assert.NoError(t, err)
			if assert.NotNil(t, got) {
				assert.True(t, written[got.Secret], "read a credential that was never written: %q", got.Secret)
			}

			_, err = vault.ListSourceIDs(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whichever rotation won, the surviving record is one whole credential,
	// never a torn mix.
	got, err := vault.Retrieve(ctx, "disp1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, written[got.Secret])

	ids, err := vault.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"disp1"}, ids)
}

func TestCredentialVault_DeleteSucceedsWhenIndexUpdateFails(t *testing.T) {
	ring := newFakeKeyring()
	vault, _ := setupVault(t, ring)
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-A")))

	ring.failIndexWrites = true
	existed, err := vault.Delete(ctx, "disp1")
	require.NoError(t, err, "index upkeep is best-effort; the revocation itself succeeded")
	assert.True(t, existed)

	got, err := vault.Retrieve(ctx, "disp1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialVault_DeleteReportsExistence(t *testing.T) {
	vault, _ := setupVault(t, newFakeKeyring())
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-A")))

	existed, err := vault.Delete(ctx, "disp1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = vault.Delete(ctx, "disp1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestCredentialVault_CorruptedFileRecord(t *testing.T) {
	vault, records := setupVault(t, &alwaysBrokenKeyring{})
	ctx := context.Background()

	garbage := make([]byte, 64)
	_, err := rand.Read(garbage)
	require.NoError(t, err)
	require.NoError(t, records.Put(ctx, "disp1", garbage))

	_, err = vault.Retrieve(ctx, "disp1")
	require.ErrorIs(t, err, domain.ErrDecryptionFailed)
}

func TestCredentialVault_LegacyRecordReadAndUpgraded(t *testing.T) {
	vault, records := setupVault(t, &alwaysBrokenKeyring{})
	ctx := context.Background()

	cipher, err := newEnvelopeCipher([]byte("test-machine\x00test-user"))
	require.NoError(t, err)
	legacyEnvelope, err := cipher.sealLegacy([]byte(`{"secret":"tok-old","kind":"monitor","persist":"until_revoked","issued_at":"2023-11-14T22:13:20Z"}`))
	require.NoError(t, err)
	require.NoError(t, records.Put(ctx, "disp1", legacyEnvelope))

	got, err := vault.Retrieve(ctx, "disp1")
	require.NoError(t, err)
	assert.Equal(t, "tok-old", got.Secret)

	// The next write rewrites the record in the versioned format.
	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-new")))
	envelope, err := records.Get(ctx, "disp1")
	require.NoError(t, err)
	assert.Equal(t, byte(envelopeFormatV1), envelope[0])
}

func TestCredentialVault_ListIsIdempotent(t *testing.T) {
	vault, _ := setupVault(t, newFakeKeyring())
	ctx := context.Background()

	require.NoError(t, vault.Store(ctx, "disp1", testCredential("tok-A")))
	require.NoError(t, vault.Store(ctx, "win7", testCredential("tok-B")))

	first, err := vault.ListSourceIDs(ctx)
	require.NoError(t, err)
	second, err := vault.ListSourceIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.ElementsMatch(t, []string{"disp1", "win7"}, first)
}

// alwaysBrokenKeyring forces the file backend without tracking anything.
type alwaysBrokenKeyring struct{}

func (alwaysBrokenKeyring) Set(string, string, string) error   { return assert.AnError }
func (alwaysBrokenKeyring) Get(string, string) (string, error) { return "", assert.AnError }
func (alwaysBrokenKeyring) Delete(string, string) error        { return assert.AnError }
