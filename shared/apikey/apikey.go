// Package apikey hashes and verifies operator API keys. Only the bcrypt hash is kept in
// configuration.
package apikey

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost = bcrypt.DefaultCost
	// bcrypt ignores input past 72 bytes.
	MaxLength = 72
)

var (
	ErrEmptyKey    = errors.New("api key cannot be empty")
	ErrKeyTooLong  = errors.New("api key is longer than 72 bytes")
	ErrInvalidKey  = errors.New("invalid api key")
	ErrMissingHash = errors.New("api key hash is not configured")
)

// Hash returns the bcrypt hash to store in APP_API_KEY_HASH.
func Hash(key string) (string, error) {
	switch {
	case key == "":
		return "", ErrEmptyKey
	case len(key) > MaxLength:
		return "", ErrKeyTooLong
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(key), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	return string(bytes), nil
}

// Verify checks key against hash.
func Verify(key, hash string) error {
	if hash == "" {
		return ErrMissingHash
	}

	if key == "" {
		return ErrInvalidKey
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidKey
		}

		return fmt.Errorf("failed to verify api key: %w", err)
	}

	return nil
}
