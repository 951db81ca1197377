package managers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/captura-dev/captura/internal/domain"
	"github.com/captura-dev/captura/internal/storage"

	"github.com/rs/zerolog/log"
)

// fileVaultBackend keeps credentials in the per-user SQLite container,
// sealed with the envelope cipher. It is the permanent fallback when the OS
// secret store is unusable.
type fileVaultBackend struct {
	records *storage.RecordRepo
	cipher  *envelopeCipher
}

func newFileVaultBackend(records *storage.RecordRepo, cipher *envelopeCipher) *fileVaultBackend {
	return &fileVaultBackend{records: records, cipher: cipher}
}

func (b *fileVaultBackend) name() string {
	return "file"
}

func (b *fileVaultBackend) store(ctx context.Context, sourceID string, credential domain.RestoreCredential) error {
	plaintext, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("%w: encode credential: %v", domain.ErrIO, err)
	}

	envelope, err := b.cipher.seal(plaintext)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}

	if err := b.records.Put(ctx, sourceID, envelope); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return nil
}

func (b *fileVaultBackend) retrieve(ctx context.Context, sourceID string) (*domain.RestoreCredential, error) {
	envelope, err := b.records.Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	if envelope == nil {
		return nil, nil
	}

	plaintext, legacy, err := b.cipher.open(envelope)
	if err != nil {
		return nil, err
	}
	if legacy {
		// Pre-versioned record. The next store or rotate rewrites it as v1.
		log.Debug().Str("source_id", sourceID).Msg("Read legacy credential record")
	}

	var credential domain.RestoreCredential
	if err := json.Unmarshal(plaintext, &credential); err != nil {
		return nil, fmt.Errorf("%w: decode credential: %v", domain.ErrDecryptionFailed, err)
	}
	return &credential, nil
}

func (b *fileVaultBackend) remove(ctx context.Context, sourceID string) (bool, error) {
	existed, err := b.records.Delete(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return existed, nil
}

func (b *fileVaultBackend) listSourceIDs(ctx context.Context) ([]string, error) {
	ids, err := b.records.ListSourceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIO, err)
	}
	return ids, nil
}
