// Package security seals secrets that are stored in the database but must be
// recovered in plaintext, such as the router API password.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PasswordEncryptionPrefix marks encrypted passwords
const PasswordEncryptionPrefix = "ENC:"

// ErrNoKey is returned when a sealed value is opened without a key.
var ErrNoKey = errors.New("security: value is encrypted but no SECRETS_KEY is configured")

// Sealer encrypts with AES-256-GCM. A nil *Sealer stores values unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer takes a 64 hex character key. An empty key returns a nil Sealer.
func NewSealer(keyHex string) (*Sealer, error) {
	if keyHex == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) != 32 {
		return nil, errors.New("security: SECRETS_KEY must be 64 hex characters (32 bytes)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts plaintext. Empty and already sealed values are returned as is.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" || IsPasswordEncrypted(plaintext) {
		return plaintext, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce: %w", err)
	}
	ciphertext := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return PasswordEncryptionPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged, so
// rows written before a key was configured keep working.
func (s *Sealer) Open(value string) (string, error) {
	if !IsPasswordEncrypted(value) {
		return value, nil
	}
	if s == nil {
		return "", ErrNoKey
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, PasswordEncryptionPrefix))
	if err != nil {
		return "", fmt.Errorf("security: decode: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", errors.New("security: ciphertext too short")
	}
	nonce, data := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("security: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsPasswordEncrypted checks if a password is already encrypted
func IsPasswordEncrypted(password string) bool {
	return strings.HasPrefix(password, PasswordEncryptionPrefix)
}

// GeneratePasswordKey returns a new random key suitable for SECRETS_KEY.
func GeneratePasswordKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
