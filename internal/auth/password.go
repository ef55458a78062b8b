// ABOUTME: Password hashing and input validation for authentication flows
// ABOUTME: bcrypt with a same-cost dummy hash so failed lookups cost the same as mismatches

package auth

import (
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// dummyPassword is hashed once per Service. Comparing against that hash when
// no real one exists keeps timing uniform between unknown accounts and wrong
// passwords, at whatever cost real hashes use.
const dummyPassword = "coven-identity-timing-equalizer"

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	Cost int // zero means bcrypt.DefaultCost
}

// Hash returns the bcrypt hash of password.
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

// Compare returns nil when password matches hash.
func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email is not a valid address")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return validationError("password is required")
	}
	if len(password) > maxPasswordBytes {
		return validationError("password must be at most 72 bytes")
	}
	return nil
}

// normalizePhone trims whitespace; formats are left to the caller
func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}
