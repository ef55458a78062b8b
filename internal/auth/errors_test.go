// ABOUTME: Tests for the auth error taxonomy
// ABOUTME: Checks errors.Is matching by kind, unwrapping and public messages

package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/coven-identity/internal/store"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := newError(KindConflict, "email already registered", store.ErrEmailExists)

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, store.ErrEmailExists, "cause stays reachable")

	wrapped := fmt.Errorf("handler: %w", err)
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestError_PublicMessage(t *testing.T) {
	cause := errors.New("sqlite: database is locked")
	assert.Equal(t, "internal error", internalError("creating user", cause).PublicMessage())

	notFound := &Error{Kind: KindNotFound, Message: ErrNotFound.Message, login: true}
	badPassword := &Error{Kind: KindInvalidCredentials, Message: ErrInvalidCredentials.Message, login: true}
	assert.Equal(t, badPassword.PublicMessage(), notFound.PublicMessage())

	// Outside login a missing user may be reported as such
	assert.Equal(t, "user not found", newError(KindNotFound, ErrNotFound.Message, nil).PublicMessage())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "social_only_account", KindSocialOnlyAccount.String())
	assert.Equal(t, "internal", Kind(99).String())
}
