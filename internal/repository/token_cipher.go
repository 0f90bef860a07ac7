package repository

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealedTokenPrefix = "v1:"
	nonceSize         = 24
)

// ErrTokenUnreadable is returned when a stored token cannot be decrypted,
// usually because the key changed.
var ErrTokenUnreadable = errors.New("stored token cannot be decrypted")

// TokenCipher encrypts shopper bearer tokens before they are stored.
type TokenCipher struct {
	key [32]byte
}

// NewTokenCipher derives the encryption key from secret.
func NewTokenCipher(secret string) (*TokenCipher, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("token key must be at least 16 characters")
	}
	return &TokenCipher{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal encrypts token. An empty token stays empty.
func (c *TokenCipher) Seal(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(token), &nonce, &c.key)
	return sealedTokenPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (c *TokenCipher) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, ok := strings.CutPrefix(sealed, sealedTokenPrefix)
	if !ok {
		return "", ErrTokenUnreadable
	}
	data, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil || len(data) < nonceSize+secretbox.Overhead {
		return "", ErrTokenUnreadable
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	token, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &c.key)
	if !ok {
		return "", ErrTokenUnreadable
	}
	return string(token), nil
}
