// ABOUTME: Authenticated identity carried through request contexts
// ABOUTME: Provides WithIdentity/FromContext for collaborators behind the middleware

package auth

import (
	"context"

	"github.com/2389/coven-identity/internal/store"
)

// Identity is the caller proven by an access token.
type Identity struct {
	Email string
	Role  store.Role
}

// HasRole reports whether the identity holds any of roles. Admin satisfies every role.
func (i *Identity) HasRole(roles ...store.Role) bool {
	if i.Role == store.RoleAdmin {
		return true
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity returns a new context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the Identity in ctx, or nil if there is none.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// MustFromContext returns the Identity in ctx, panicking if there is none.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: Identity not found in context")
	}
	return id
}
