package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sentinel errors for credential encryption.
var (
	// ErrSecretKeyInvalid is returned when the configured secret key is not
	// 32 hex-encoded bytes.
	ErrSecretKeyInvalid = errors.New("secret key must be 64 hex characters (32 bytes)")

	// ErrCiphertextInvalid is returned when a stored credential cannot be
	// decrypted (wrong key or corrupted row).
	ErrCiphertextInvalid = errors.New("credential ciphertext invalid")
)

// ParseSecretKey decodes the hex-encoded symmetric key from the environment.
func ParseSecretKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrSecretKeyInvalid
	}

	return key, nil
}

// encryptCredential seals a plaintext credential with ChaCha20-Poly1305.
// The random nonce is prepended to the ciphertext.
func encryptCredential(key []byte, plaintext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// decryptCredential opens a sealed credential produced by encryptCredential.
func decryptCredential(key, sealed []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}

	return string(plaintext), nil
}
