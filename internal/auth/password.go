package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns a password into its stored form and checks candidates.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(stored, candidate string) bool
}

// BcryptHasher stores bcrypt digests.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Verify(stored, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
}

// PlaintextHasher stores passwords as typed. It exists to read ledgers
// written before hashing was introduced.
type PlaintextHasher struct{}

func (PlaintextHasher) Hash(password string) (string, error) {
	return password, nil
}

func (PlaintextHasher) Verify(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

// NewHasher maps the PASSWORD_HASHING setting onto a Hasher.
func NewHasher(mode string) (Hasher, error) {
	switch mode {
	case "", "bcrypt":
		return BcryptHasher{}, nil
	case "plaintext":
		return PlaintextHasher{}, nil
	}
	return nil, fmt.Errorf("unknown password hashing %q", mode)
}
