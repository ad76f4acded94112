package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch indicates that a credential does not match its hash.
var ErrMismatch = errors.New("security: credential mismatch")

// HashCredential hashes a credential with bcrypt.
func HashCredential(credential string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareCredential checks credential against hash.
func CompareCredential(hash, credential string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)); err != nil {
		return ErrMismatch
	}
	return nil
}
