package configstore

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// encPrefix tags ciphertext values stored in the config document.
const encPrefix = "enc:v1:"

// keyFileName holds the symmetric key next to the config document.
const keyFileName = "secrets.key"

// SecretStore encrypts and decrypts secret values for the config document
// using XChaCha20-Poly1305. The key file is created lazily with 0600
// permissions. When encryption is disabled, values pass through as
// plaintext.
type SecretStore struct {
	dir     string
	encrypt bool
}

// NewSecretStore builds a SecretStore rooted at dir (normally the config
// document's directory).
func NewSecretStore(dir string, encrypt bool) *SecretStore {
	return &SecretStore{dir: dir, encrypt: encrypt}
}

// Encrypt returns the storable form of a plaintext secret.
func (s *SecretStore) Encrypt(plain string) (string, error) {
	if !s.encrypt {
		return plain, nil
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plain), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt recovers the plaintext from a stored secret value. Plaintext
// values (encryption disabled, or stored before it was enabled) are
// returned as-is.
func (s *SecretStore) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	key, err := s.loadOrCreateKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}
	nonce, ct := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	return string(plain), nil
}

// IsEncrypted reports whether a stored value carries the ciphertext tag.
func IsEncrypted(stored string) bool {
	return strings.HasPrefix(stored, encPrefix)
}

func (s *SecretStore) keyPath() string {
	return filepath.Join(s.dir, keyFileName)
}

func (s *SecretStore) loadOrCreateKey() ([]byte, error) {
	raw, err := os.ReadFile(s.keyPath())
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil {
			return nil, fmt.Errorf("decode key file %s: %w", s.keyPath(), decErr)
		}
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("key file %s: wrong key length %d", s.keyPath(), len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file %s: %w", s.keyPath(), err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create key dir %s: %w", s.dir, err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(s.keyPath(), []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write key file %s: %w", s.keyPath(), err)
	}
	return key, nil
}
