package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// BcryptEncoder implements Encoder using bcrypt
type BcryptEncoder struct {
	cost int
}

// NewBcryptEncoder creates a bcrypt encoder; an out-of-range cost falls back to bcrypt.DefaultCost
func NewBcryptEncoder(cost int) *BcryptEncoder {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptEncoder{cost: cost}
}

// Hash implements Encoder.Hash
func (h *BcryptEncoder) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// Verify implements Encoder.Verify
func (h *BcryptEncoder) Verify(password, hashedPassword string) (bool, error) {
	if password == "" || hashedPassword == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil // Password doesn't match, but not an error
		}
		return false, err
	}

	return true, nil
}
