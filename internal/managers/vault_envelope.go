package managers

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/captura-dev/captura/internal/domain"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// On-disk record layout: [format_version: 1 byte][nonce: 12 bytes][ciphertext || tag].
// Records without the version byte predate the format and were sealed with
// AES-256-GCM under a bare SHA-256 of the identity material; they decode
// transparently and are rewritten as v1 on the next write.
const envelopeFormatV1 = 0x01

var (
	envelopeKDFSalt = []byte("captura-credential-vault")
	envelopeKDFInfo = []byte("file-backend-key-v1")
)

// envelopeCipher seals and opens credential envelopes for the file backend.
// The key never leaves this struct; nonces are drawn from crypto/rand on
// every seal so nonce reuse under the fixed key is structurally impossible.
type envelopeCipher struct {
	aead      cipher.AEAD
	legacyKey []byte
}

// newEnvelopeCipher derives the sealing key from identity material via
// HKDF-SHA256 (never a bare hash) and keeps the legacy AES-GCM key around
// only for reading pre-versioned records.
func newEnvelopeCipher(identity []byte) (*envelopeCipher, error) {
	kdf := hkdf.New(sha256.New, identity, envelopeKDFSalt, envelopeKDFInfo)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive vault key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("create vault cipher: %w", err)
	}

	legacyKey := sha256.Sum256(identity)

	return &envelopeCipher{aead: aead, legacyKey: legacyKey[:]}, nil
}

// seal encrypts plaintext into a v1 envelope with a fresh random nonce.
func (c *envelopeCipher) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	envelope := make([]byte, 0, 1+len(nonce)+len(plaintext)+c.aead.Overhead())
	envelope = append(envelope, envelopeFormatV1)
	envelope = append(envelope, nonce...)
	envelope = c.aead.Seal(envelope, nonce, plaintext, nil)
	return envelope, nil
}

// open decrypts an envelope of either format. It reports whether the record
// was in the legacy layout so the caller can schedule an upgrade. All
// failures map to ErrDecryptionFailed; the contents of a record that does
// not authenticate are never partially exposed.
func (c *envelopeCipher) open(envelope []byte) (plaintext []byte, legacy bool, err error) {
	if len(envelope) == 0 {
		return nil, false, fmt.Errorf("%w: empty record", domain.ErrDecryptionFailed)
	}

	if envelope[0] == envelopeFormatV1 {
		if plaintext, err := c.openV1(envelope[1:]); err == nil {
			return plaintext, false, nil
		}
		// A legacy record's leading nonce byte can collide with the version
		// tag; fall through and try the old layout before giving up.
	}

	plaintext, err = c.openLegacy(envelope)
	if err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}

func (c *envelopeCipher) openV1(body []byte) ([]byte, error) {
	if len(body) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: truncated record", domain.ErrDecryptionFailed)
	}
	nonce, ciphertext := body[:c.aead.NonceSize()], body[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (c *envelopeCipher) openLegacy(envelope []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.legacyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if len(envelope) < gcm.NonceSize()+gcm.Overhead() {
		return nil, fmt.Errorf("%w: truncated legacy record", domain.ErrDecryptionFailed)
	}
	nonce, ciphertext := envelope[:gcm.NonceSize()], envelope[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// sealLegacy exists only for tests that need to fabricate pre-versioned
// records.
func (c *envelopeCipher) sealLegacy(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.legacyKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}
