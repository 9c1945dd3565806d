// Package credentials resolves worker credential references into session
// material. The registry only ever holds the opaque encrypted blob; this
// package is the single place plaintext exists, for the duration of one
// scrape.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// AESGCM decrypts credential blobs sealed with AES-256-GCM. The blob format
// is base64(nonce || ciphertext) with the GCM nonce prefixed.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM constructs a decryptor from a 32-byte key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Decrypt unseals a credentials blob and decodes the session material.
func (s *AESGCM) Decrypt(_ context.Context, credentialsRef string) (leadscout.Credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(credentialsRef)
	if err != nil {
		return leadscout.Credentials{}, fmt.Errorf("decode credentials blob: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return leadscout.Credentials{}, fmt.Errorf("credentials blob too short")
	}
	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return leadscout.Credentials{}, fmt.Errorf("unseal credentials blob: %w", err)
	}
	var creds leadscout.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return leadscout.Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// Seal is the inverse of Decrypt; onboarding flows use it when registering
// workers, and tests use it to build valid blobs.
func (s *AESGCM) Seal(creds leadscout.Credentials, nonce []byte) (string, error) {
	if len(nonce) != s.aead.NonceSize() {
		return "", fmt.Errorf("nonce must be %d bytes, got %d", s.aead.NonceSize(), len(nonce))
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, nonce...), sealed...)), nil
}

// Static returns the same credentials for every reference. Development and
// test use only.
type Static struct {
	Creds leadscout.Credentials
}

// Decrypt for Static ignores the reference and returns the fixed value.
func (s *Static) Decrypt(_ context.Context, _ string) (leadscout.Credentials, error) {
	return s.Creds, nil
}
