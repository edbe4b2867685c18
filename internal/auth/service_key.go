package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidServiceKey is returned when the presented key does not match
// the configured hash.
var ErrInvalidServiceKey = errors.New("invalid service key")

// HashServiceKey produces the bcrypt hash stored in SERVICE_KEY_HASH.
// Used by ops tooling when rotating the key.
func HashServiceKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyServiceKey checks a presented key against the configured hash.
func VerifyServiceKey(key, hash string) error {
	if hash == "" {
		return ErrInvalidServiceKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrInvalidServiceKey
	}
	return nil
}
