package webhook

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// SecretBox seals endpoint signing secrets at rest with AES-256-GCM.
// The worker needs the plaintext to sign, so a one-way hash is not enough.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox derives a 256-bit key from key.
func NewSecretBox(key string) (*SecretBox, error) {
	if key == "" {
		return nil, ErrMissingEncryptionKey
	}
	sum := sha256.Sum256([]byte(key))

	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal encrypts secret and returns base64(nonce || ciphertext).
func (b *SecretBox) Seal(secret string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(secret), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (b *SecretBox) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrSealedSecret
	}
	n := b.aead.NonceSize()
	if len(raw) < n {
		return "", ErrSealedSecret
	}
	plain, err := b.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrSealedSecret
	}
	return string(plain), nil
}
