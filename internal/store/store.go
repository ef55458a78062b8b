// ABOUTME: Store interfaces and data types for coven-identity persistence
// ABOUTME: Defines User and OTP records and the UserStore/OTPStore contracts

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when creating a user whose email is already registered
var ErrEmailExists = errors.New("email already exists")

// ErrPhoneExists is returned when creating a user whose phone is already registered
var ErrPhoneExists = errors.New("phone already exists")

// Role is the authorization role carried by a user and their tokens
type Role string

const (
	RoleUser     Role = "user"
	RoleBusiness Role = "business"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBusiness, RoleAdmin:
		return true
	}
	return false
}

// UserField selects which unique identity column an existence check targets
type UserField string

const (
	FieldEmail UserField = "email"
	FieldPhone UserField = "phone"
)

// User is an account known to the credential core
type User struct {
	ID            string
	Name          string
	Email         string // normalized, unique
	Phone         string // unique, empty for social-only accounts
	Picture       string
	PasswordHash  string // bcrypt hash, empty if social-only
	EmailVerified bool
	Role          Role
	Providers     map[string]string // provider name -> provider identifier
	IsSubscribed  bool              // owned by billing, read-only here
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// OTP is a one-time passcode bound to an email and a purpose
type OTP struct {
	ID         string
	Email      string
	Purpose    string // "signup" or "forgotPassword"
	Code       string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// UserStore defines the credential persistence operations.
// Updates are targeted single-field writes so concurrent changes to
// unrelated columns are never clobbered.
type UserStore interface {
	UserExists(ctx context.Context, field UserField, value string) (bool, error)
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetEmailVerified(ctx context.Context, email string) error
	SetPasswordHash(ctx context.Context, email, passwordHash string) error
	LinkProvider(ctx context.Context, email, provider, token string) error
}

// OTPStore defines persistence for one-time passcodes.
type OTPStore interface {
	// SaveOTP invalidates any unconsumed code for the same (email, purpose)
	// and stores otp in a single atomic step.
	SaveOTP(ctx context.Context, otp *OTP) error

	// ConsumeOTP atomically marks the newest unconsumed, unexpired code
	// matching email and code as consumed and returns it. Only one caller
	// can consume a given code. Returns ErrNotFound otherwise.
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*OTP, error)

	// DeleteExpiredOTPs removes codes that are expired or already consumed.
	DeleteExpiredOTPs(ctx context.Context, now time.Time) (int64, error)
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
