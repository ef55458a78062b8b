// ABOUTME: Closed set of OTP purposes
// ABOUTME: Purpose is persisted as a string but only the defined values parse

package otp

import (
	"fmt"
)

// Purpose is what a one-time code was issued for
type Purpose int

const (
	// PurposeUnknown is the zero value; it never verifies
	PurposeUnknown Purpose = iota
	PurposeSignup
	PurposeForgotPassword
)

// Purposes lists every purpose a code can be issued for.
var Purposes = []Purpose{PurposeSignup, PurposeForgotPassword}

// String returns the persisted name of the purpose.
func (p Purpose) String() string {
	switch p {
	case PurposeSignup:
		return "signup"
	case PurposeForgotPassword:
		return "forgotPassword"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a defined purpose.
func (p Purpose) Valid() bool {
	return p == PurposeSignup || p == PurposeForgotPassword
}

// ParsePurpose converts a persisted name back into a Purpose.
func ParsePurpose(s string) (Purpose, error) {
	switch s {
	case "signup":
		return PurposeSignup, nil
	case "forgotPassword":
		return PurposeForgotPassword, nil
	default:
		return PurposeUnknown, fmt.Errorf("unknown otp purpose %q", s)
	}
}
