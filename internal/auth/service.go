// ABOUTME: Auth orchestrator wiring store, OTP engine, tokens and identity verifier
// ABOUTME: Each flow runs validate, check, mutate, respond in strict order

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/coven-identity/internal/identity"
	"github.com/2389/coven-identity/internal/otp"
	"github.com/2389/coven-identity/internal/store"
	"github.com/2389/coven-identity/internal/token"
)

// OTPEngine issues and consumes one-time codes.
type OTPEngine interface {
	Issue(ctx context.Context, email string, purpose otp.Purpose) error
	Verify(ctx context.Context, email, code string) (otp.Purpose, error)
}

// Tokens signs and verifies the three token kinds.
type Tokens interface {
	IssueAccess(email, role string) (string, error)
	IssueRefresh(email, role string, extended bool) (string, error)
	IssuePasswordReset(email string) (string, error)
	VerifyAccess(token string) (*token.Claims, error)
	VerifyRefresh(token string) (*token.Claims, error)
	VerifyPasswordReset(token string) (*token.Claims, error)
}

// IdentityVerifier validates a third-party identity assertion.
type IdentityVerifier interface {
	VerifyExternalIdentity(ctx context.Context, providerToken string) (*identity.Claims, error)
}

// ReplayGuard records spent token IDs. replay.Guard implementations satisfy it.
type ReplayGuard interface {
	Spend(ctx context.Context, id string, expiresAt time.Time) (bool, error)
}

// AuditRecorder appends account events. store.AuditLog implementations satisfy it.
type AuditRecorder interface {
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// Deps are the collaborators a Service needs. Identity may be nil, which
// disables SocialLogin. Replay may be nil, which leaves reset tokens
// reusable until they expire. Audit may be nil.
type Deps struct {
	Users    store.UserStore
	OTP      OTPEngine
	Tokens   Tokens
	Identity IdentityVerifier
	Replay   ReplayGuard
	Audit    AuditRecorder
	Hasher   PasswordHasher   // defaults to BcryptHasher{}
	Now      func() time.Time // defaults to time.Now
	Logger   *slog.Logger
}

// Service implements the account and credential flows.
type Service struct {
	users    store.UserStore
	otp      OTPEngine
	tokens   Tokens
	identity IdentityVerifier
	replay   ReplayGuard
	audit    AuditRecorder
	hasher   PasswordHasher
	now      func() time.Time
	logger   *slog.Logger

	dummyHash string
}

// NewService creates a Service.
func NewService(d Deps) (*Service, error) {
	if d.Users == nil || d.OTP == nil || d.Tokens == nil {
		return nil, errors.New("auth: users, otp and tokens are required")
	}
	if d.Hasher == nil {
		d.Hasher = BcryptHasher{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	dummy, err := d.Hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("auth: preparing dummy hash: %w", err)
	}
	return &Service{
		users:    d.Users,
		otp:      d.OTP,
		tokens:   d.Tokens,
		identity: d.Identity,
		replay:   d.Replay,
		audit:    d.Audit,
		hasher:   d.Hasher,
		now:      d.Now,
		logger:   d.Logger.With("component", "auth"),

		dummyHash: dummy,
	}, nil
}

// SignupRequest is the input to Signup.
type SignupRequest struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// LoginRequest is the input to Login.
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
}

// ResetPasswordRequest is the input to ResetPassword.
type ResetPasswordRequest struct {
	Email      string
	Password   string
	ResetToken string
}

// VerifyResult reports what a verified code was for. ResetToken is set only
// for PurposeForgotPassword.
type VerifyResult struct {
	Purpose    otp.Purpose
	ResetToken string
}

// TokenPair is returned by Login and SocialLogin.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

func (s *Service) issuePair(email string, role store.Role, extended bool) (TokenPair, error) {
	access, err := s.tokens.IssueAccess(email, string(role))
	if err != nil {
		return TokenPair{}, internalError("issuing access token", err)
	}
	refresh, err := s.tokens.IssueRefresh(email, string(role), extended)
	if err != nil {
		return TokenPair{}, internalError("issuing refresh token", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// issueOTP maps engine failures into flow errors
func (s *Service) issueOTP(ctx context.Context, email string, purpose otp.Purpose) error {
	err := s.otp.Issue(ctx, email, purpose)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, otp.ErrRateLimited):
		return newError(KindRateLimited, "too many code requests, try again later", err)
	default:
		return internalError("sending verification code", err)
	}
}

// record appends an audit entry. Failures are logged and never fail the flow.
func (s *Service) record(ctx context.Context, email string, action store.AuditAction, detail map[string]any) {
	if s.audit == nil {
		return
	}
	entry := &store.AuditEntry{
		Email:     email,
		Action:    action,
		Timestamp: s.now().UTC(),
		Detail:    detail,
	}
	if err := s.audit.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit entry", "action", action, "email", email, "error", err)
	}
}

// storeError maps a store failure, treating ErrNotFound as a missing user
func storeError(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, "user not found", err)
	}
	return internalError(op, err)
}
