// ABOUTME: Google identity verifier for social login
// ABOUTME: Validates ID tokens through an injected idtoken validator and returns verified claims

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"
)

// ProviderGoogle is the provider name recorded on linked accounts.
const ProviderGoogle = "google"

// ErrInvalidExternalToken is returned when a provider assertion fails verification.
var ErrInvalidExternalToken = errors.New("invalid external token")

// Claims is the verified identity asserted by a provider
type Claims struct {
	Provider      string
	Subject       string // provider-stable user identifier
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// TokenValidator checks an ID token's signature against the provider's keys.
// *idtoken.Validator satisfies it.
type TokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// NewGoogleValidator creates the validator that fetches and caches Google's
// signing certificates. Construct it once and pass it to NewGoogleVerifier.
func NewGoogleValidator(ctx context.Context, opts ...option.ClientOption) (*idtoken.Validator, error) {
	v, err := idtoken.NewValidator(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating google id token validator: %w", err)
	}
	return v, nil
}

// GoogleVerifier verifies Google ID tokens for this application's client ID
type GoogleVerifier struct {
	validator TokenValidator
	clientID  string
	now       func() time.Time
	logger    *slog.Logger
}

// NewGoogleVerifier creates a verifier; clientID is the expected audience.
func NewGoogleVerifier(validator TokenValidator, clientID string, logger *slog.Logger) (*GoogleVerifier, error) {
	if validator == nil {
		return nil, errors.New("google verifier: validator is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("google verifier: client id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GoogleVerifier{
		validator: validator,
		clientID:  clientID,
		now:       time.Now,
		logger:    logger.With("component", "identity", "provider", ProviderGoogle),
	}, nil
}

// VerifyExternalIdentity validates the ID token and returns its claims.
// It never touches the credential store.
func (v *GoogleVerifier) VerifyExternalIdentity(ctx context.Context, providerToken string) (*Claims, error) {
	if strings.TrimSpace(providerToken) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidExternalToken)
	}

	payload, err := v.validator.Validate(ctx, providerToken, v.clientID)
	if err != nil {
		v.logger.Debug("id token rejected", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidExternalToken, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidExternalToken)
	}

	// Audience and expiry hold regardless of which TokenValidator is injected
	if payload.Audience != v.clientID {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidExternalToken)
	}
	if payload.Expires != 0 && !time.Unix(payload.Expires, 0).After(v.now()) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidExternalToken)
	}

	email, _ := payload.Claims["email"].(string)
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidExternalToken)
	}
	verified := true
	if ev, ok := payload.Claims["email_verified"].(bool); ok {
		verified = ev
	}
	if !verified {
		return nil, fmt.Errorf("%w: email not verified by provider", ErrInvalidExternalToken)
	}

	name, _ := payload.Claims["name"].(string)
	picture, _ := payload.Claims["picture"].(string)

	subject := payload.Subject
	if subject == "" {
		subject, _ = payload.Claims["sub"].(string)
	}

	return &Claims{
		Provider:      ProviderGoogle,
		Subject:       subject,
		Email:         email,
		Name:          name,
		Picture:       picture,
		EmailVerified: verified,
	}, nil
}
