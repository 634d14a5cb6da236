// Package cryptosecret implements AES-256-GCM encryption for the encrypted
// secret store (C2) with a single master key loaded from the environment.
package cryptosecret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const keySize = 32 // AES-256

var (
	ErrInvalidKeySize  = errors.New("cryptosecret: master key must decode to exactly 32 bytes")
	ErrDecryptionFailed = errors.New("cryptosecret: decryption failed")
)

// Box encrypts and decrypts secret values with a fixed 32-byte master key.
type Box struct {
	gcm cipher.AEAD
}

// NewBox builds a Box from a base64-encoded 32-byte key, as read from
// HOOK0_ENCRYPTION_KEY.
func NewBox(masterKeyB64 string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("cryptosecret: decode master key: %w", err)
	}
	if len(raw) != keySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("cryptosecret: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptosecret: new gcm: %w", err)
	}

	return &Box{gcm: gcm}, nil
}

// Sealed is a ciphertext + nonce pair, both base64-encoded for storage.
type Sealed struct {
	CiphertextB64 string
	NonceB64      string
}

// Encrypt seals plaintext under a freshly generated 96-bit nonce.
func (b *Box) Encrypt(plaintext []byte) (Sealed, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Sealed{}, fmt.Errorf("cryptosecret: generate nonce: %w", err)
	}

	ciphertext := b.gcm.Seal(nil, nonce, plaintext, nil)
	return Sealed{
		CiphertextB64: base64.StdEncoding.EncodeToString(ciphertext),
		NonceB64:      base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// Decrypt opens a Sealed value, returning the original plaintext.
func (b *Box) Decrypt(s Sealed) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(s.CiphertextB64)
	if err != nil {
		return nil, fmt.Errorf("cryptosecret: decode ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.NonceB64)
	if err != nil {
		return nil, fmt.Errorf("cryptosecret: decode nonce: %w", err)
	}
	if len(nonce) != b.gcm.NonceSize() {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := b.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
