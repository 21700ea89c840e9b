// Package secret seals agent bot credentials at rest with AES-GCM.
//
// The stored form is base64(nonce || ciphertext || tag) with a 12 byte nonce,
// which is what existing agent documents already carry.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const nonceLen = 12

var (
	// ErrDecrypt is returned when a sealed credential cannot be opened.
	ErrDecrypt = errors.New("secret: decryption failed")

	// ErrInvalidKey is returned for keys that are not 16, 24 or 32 bytes.
	ErrInvalidKey = errors.New("secret: key must be 16, 24 or 32 bytes")
)

// Box seals and opens credentials with a single AES key.
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a Box from a base64 encoded AES key.
func NewBox(keyB64 string) (*Box, error) {
	if keyB64 == "" {
		return nil, fmt.Errorf("secret: empty key: %w", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("secret: decode key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Box{aead: gcm}, nil
}

// Seal encrypts plaintext and returns the stored form.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("secret: empty plaintext")
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored credential. Any failure wraps ErrDecrypt.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", fmt.Errorf("%w: empty credential", ErrDecrypt)
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(raw) < nonceLen+b.aead.Overhead() {
		return "", fmt.Errorf("%w: credential too short", ErrDecrypt)
	}
	plaintext, err := b.aead.Open(nil, raw[:nonceLen], raw[nonceLen:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
