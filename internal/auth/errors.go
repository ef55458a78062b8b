// ABOUTME: Error taxonomy for authentication flows
// ABOUTME: Every failure carries a stable Kind plus a safe public message

package auth

import (
	"errors"
	"fmt"
)

// Kind classifies a flow failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindInvalidOTP
	KindInvalidToken
	KindInvalidExternalToken
	KindSocialOnlyAccount
	KindInvalidCredentials
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalidOTP:
		return "invalid_otp"
	case KindInvalidToken:
		return "invalid_token"
	case KindInvalidExternalToken:
		return "invalid_external_token"
	case KindSocialOnlyAccount:
		return "social_only_account"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrValidation           = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrConflict             = &Error{Kind: KindConflict, Message: "already exists"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrInvalidOTP           = &Error{Kind: KindInvalidOTP, Message: "invalid or expired code"}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken, Message: "invalid or expired token"}
	ErrInvalidExternalToken = &Error{Kind: KindInvalidExternalToken, Message: "invalid identity token"}
	ErrSocialOnlyAccount    = &Error{Kind: KindSocialOnlyAccount, Message: "account uses social login"}
	ErrInvalidCredentials   = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrRateLimited          = &Error{Kind: KindRateLimited, Message: "too many requests"}
	ErrInternal             = &Error{Kind: KindInternal, Message: "internal error"}
)

// Error is returned by every Service flow.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, never shown to callers

	// login marks NotFound raised by Login so PublicMessage can merge it
	// with InvalidCredentials
	login bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// PublicMessage is the text safe to show the end user. Login failures for
// unknown accounts and wrong passwords read the same.
func (e *Error) PublicMessage() string {
	switch {
	case e.Kind == KindInternal:
		return ErrInternal.Message
	case e.login && (e.Kind == KindNotFound || e.Kind == KindInvalidCredentials):
		return ErrInvalidCredentials.Message
	default:
		return e.Message
	}
}

// KindOf returns the Kind of err, KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func validationError(msg string) *Error {
	return newError(KindValidation, msg, nil)
}

func internalError(op string, err error) *Error {
	return newError(KindInternal, op, err)
}
