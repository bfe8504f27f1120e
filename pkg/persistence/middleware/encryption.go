package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	"github.com/aretw0/weft/pkg/ports"
)

const (
	envelopeKey    = "__encrypted__"
	rejectedPrefix = "encrypted:"
)

// ErrMissingEnvelope is returned when a stored resolution was not written
// through the encryption middleware.
var ErrMissingEnvelope = errors.New("resolution is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt.
	FallbackKeys [][]byte
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: got %d bytes, need 32", len(key))
	}
	return key, nil
}

type encryptionMiddleware struct {
	next   ports.EffectStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals resolution values and
// rejection messages with AES-GCM. Effect ids and types stay readable so the
// store can still be listed and pruned.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.EffectStore) ports.EffectStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Resolve(ctx context.Context, effect *domain.Effect, value any) error {
	if _, err := domain.ResultOf(value); err != nil {
		return fmt.Errorf("resolve %s: %w", effect.ID, err)
	}
	plainText, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	sealed, err := m.seal(plainText)
	if err != nil {
		return err
	}
	return m.next.Resolve(ctx, effect, map[string]any{envelopeKey: sealed})
}

func (m *encryptionMiddleware) Reject(ctx context.Context, effect *domain.Effect, message string) error {
	sealed, err := m.seal([]byte(message))
	if err != nil {
		return err
	}
	return m.next.Reject(ctx, effect, rejectedPrefix+sealed)
}

func (m *encryptionMiddleware) Get(ctx context.Context, id hash.Hash) (*domain.Resolution, error) {
	r, err := m.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.Failed {
		sealed, ok := strings.CutPrefix(r.Error, rejectedPrefix)
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrMissingEnvelope)
		}
		plainText, err := m.open(sealed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", id, err)
		}
		r.Error = string(plainText)
		return r, nil
	}

	envelope, _ := r.Value.(map[string]any)
	sealed, ok := envelope[envelopeKey].(string)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrMissingEnvelope)
	}
	plainText, err := m.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	var value any
	if err := json.Unmarshal(plainText, &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted value: %w", err)
	}
	r.Value = value
	return r, nil
}

func (m *encryptionMiddleware) Lookup(ctx context.Context, id hash.Hash) (domain.Expression, bool, error) {
	r, err := m.Get(ctx, id)
	if errors.Is(err, domain.ErrResolutionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	expr, err := r.Expression()
	if err != nil {
		return nil, false, err
	}
	return expr, true, nil
}

func (m *encryptionMiddleware) Forget(ctx context.Context, ids ...hash.Hash) error {
	return m.next.Forget(ctx, ids...)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]hash.Hash, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) seal(plainText []byte) (string, error) {
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (m *encryptionMiddleware) open(sealed string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plainText, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
