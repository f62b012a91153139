// Package credential owns one-way hashing and verification of tenant PINs
// and the super-admin shared key. Plaintext secrets never leave this
// package's call stack and are never persisted or logged.
package credential

import (
	"github.com/tablecode/tablecode/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is tuned for interactive login: slow enough to blunt offline
// attacks, fast enough for a login round-trip.
const bcryptCost = 10

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Hash produces a salted bcrypt hash of the secret.
func (s *Store) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify reports whether secret matches hash. Any bcrypt failure (malformed
// hash, the soft-delete sentinel, cost mismatch) is a plain mismatch;
// internal state is never revealed through the error path.
func (s *Store) Verify(secret, hash string) bool {
	if hash == "" || hash == models.PinHashInvalidated {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
