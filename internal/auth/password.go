package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher abstracts the expensive password-hashing primitive. The core only
// calls it through the concurrency gate.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(digest, password string) error
}

// BcryptHasher is the production Hasher.
type BcryptHasher struct {
	// Cost overrides bcrypt.DefaultCost when positive. Tests lower it.
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	cost := h.Cost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h BcryptHasher) Verify(digest, password string) error {
	if digest == "" {
		return errors.New("password digest is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
}
