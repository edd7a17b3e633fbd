// Package tokencipher encrypts and decrypts OAuth tokens for storage at rest.
//
// Tokens are sealed with AES-256-GCM under a process-wide key supplied once
// at startup. The nonce is generated per encryption and prepended to the
// ciphertext, so a stored blob is self-contained: nonce || ciphertext.
package tokencipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// Cipher seals and opens token strings with a fixed symmetric key.
type Cipher struct {
	aead cipher.AEAD
}

// New creates a Cipher from a 32-byte key. A key of any other length is a
// configuration error and must abort startup.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes (got %d)", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext token and returns nonce || ciphertext.
func (c *Cipher) Encrypt(token string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, []byte(token), nil), nil
}

// Decrypt opens a blob produced by Encrypt and returns the plaintext token.
func (c *Cipher) Decrypt(blob []byte) (string, error) {
	if len(blob) < c.aead.NonceSize() {
		return "", fmt.Errorf("ciphertext too short: %d bytes", len(blob))
	}

	nonce, ciphertext := blob[:c.aead.NonceSize()], blob[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}

	return string(plaintext), nil
}
