package password

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPassword is returned when hashing a blank password
var ErrEmptyPassword = errors.New("password cannot be empty")

// Algorithm names a supported hashing scheme
type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Encoder defines the interface for password hashing implementations
type Encoder interface {
	// Hash hashes a password
	Hash(password string) (string, error)

	// Verify checks if the provided password matches the stored hash
	Verify(password, hashedPassword string) (bool, error)
}

// DelegatingEncoder hashes with one algorithm and verifies hashes produced by
// any supported algorithm, so stored passwords survive an algorithm change.
type DelegatingEncoder struct {
	current  Encoder
	encoders map[Algorithm]Encoder
}

// NewEncoder creates a delegating encoder hashing with the given algorithm
func NewEncoder(algorithm Algorithm, bcryptCost int) (*DelegatingEncoder, error) {
	encoders := map[Algorithm]Encoder{
		AlgorithmBcrypt:   NewBcryptEncoder(bcryptCost),
		AlgorithmArgon2id: NewArgon2Encoder(),
	}
	current, ok := encoders[algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported password algorithm: %s", algorithm)
	}
	return &DelegatingEncoder{current: current, encoders: encoders}, nil
}

// Hash implements Encoder.Hash with the current algorithm
func (d *DelegatingEncoder) Hash(password string) (string, error) {
	return d.current.Hash(password)
}

// Verify implements Encoder.Verify by dispatching on the hash format
func (d *DelegatingEncoder) Verify(password, hashedPassword string) (bool, error) {
	algorithm, ok := detect(hashedPassword)
	if !ok {
		return false, errors.New("unrecognized password hash format")
	}
	return d.encoders[algorithm].Verify(password, hashedPassword)
}

func detect(hashedPassword string) (Algorithm, bool) {
	switch {
	case strings.HasPrefix(hashedPassword, "$argon2id$"):
		return AlgorithmArgon2id, true
	case strings.HasPrefix(hashedPassword, "$2a$"),
		strings.HasPrefix(hashedPassword, "$2b$"),
		strings.HasPrefix(hashedPassword, "$2y$"):
		return AlgorithmBcrypt, true
	}
	return "", false
}
