// internal/crypto/service.go
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/user/preflight/internal/types"
)

const ivSize = 12

// ErrInvalidKey means the configured encryption key is missing or not a
// 64-character hex string. Fatal at startup.
var ErrInvalidKey = errors.New("encryption key must be 64 hex characters")

// ErrDecryptionFailed means the GCM tag did not verify.
var ErrDecryptionFailed = errors.New("decryption failed")

// Service seals and opens field values with AES-256-GCM. The key lives in
// an mlocked memguard enclave and is only materialized for the duration of
// a single operation. Random-IV output is confidential; deterministic-IV
// output is joinable across clients that share the key.
type Service struct {
	key *memguard.Enclave
	ivs *ivMap
}

// New parses the hex key, seals it into an enclave, and loads the
// persisted deterministic IV map from the key-value store.
func New(ctx context.Context, hexKey string, kv types.KeyValueStore) (*Service, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	ivs, err := loadIVMap(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("load iv map: %w", err)
	}
	// NewEnclave wipes raw.
	return &Service{key: memguard.NewEnclave(raw), ivs: ivs}, nil
}

// Encrypt seals plaintext with a fresh random 12-byte IV. Both outputs
// are base64.
func (s *Service) Encrypt(plaintext string) (string, string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", "", fmt.Errorf("generate iv: %w", err)
	}
	ct, err := s.seal([]byte(plaintext), iv)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(iv), nil
}

// EncryptDeterministic seals plaintext with the IV recorded for it in the
// persisted IV map, allocating and persisting a fresh IV on first use.
// The map entry is durable before the ciphertext is returned, so a
// partially failed upload cannot diverge the mapping across reloads.
// Repeated calls for the same plaintext yield bytewise-equal output.
func (s *Service) EncryptDeterministic(ctx context.Context, plaintext string) (string, string, error) {
	iv, err := s.ivs.ivFor(ctx, plaintext)
	if err != nil {
		return "", "", err
	}
	ct, err := s.seal([]byte(plaintext), iv)
	if err != nil {
		return "", "", err
	}
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt opens a base64 ciphertext with the given base64 IV.
func (s *Service) Decrypt(ciphertext, iv string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	gcm, done, err := s.aead()
	if err != nil {
		return "", err
	}
	defer done()
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(pt), nil
}

func (s *Service) seal(plaintext, iv []byte) ([]byte, error) {
	gcm, done, err := s.aead()
	if err != nil {
		return nil, err
	}
	defer done()
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

// aead opens the enclave and builds the GCM instance. The returned done
// func destroys the unsealed key buffer.
func (s *Service) aead() (cipher.AEAD, func(), error) {
	buf, err := s.key.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open key enclave: %w", err)
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, buf.Destroy, nil
}
