// ABOUTME: Token service issuing access, refresh, and password-reset tokens
// ABOUTME: Each kind has an independent signing context; verification is stateless

package token

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Default lifetimes.
const (
	DefaultAccessTTL          = 15 * time.Minute
	DefaultRefreshTTL         = 24 * time.Hour
	DefaultRefreshExtendedTTL = 30 * 24 * time.Hour
	DefaultResetTTL           = 10 * time.Minute
)

// Config holds the signing secrets and lifetimes. Zero TTLs use defaults.
type Config struct {
	Issuer        string
	AccessSecret  []byte
	RefreshSecret []byte
	ResetSecret   []byte

	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	RefreshExtendedTTL time.Duration // "remember me"
	ResetTTL           time.Duration

	Now func() time.Time // clock, for tests
}

// Service issues and verifies the three token kinds.
type Service struct {
	access  *Signer
	refresh *Signer
	reset   *Signer

	accessTTL          time.Duration
	refreshTTL         time.Duration
	refreshExtendedTTL time.Duration
	resetTTL           time.Duration
}

// NewService builds the three signers. Secrets must be distinct so that a
// token leaked from one context can never be verified by another.
func NewService(cfg Config) (*Service, error) {
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) ||
		bytes.Equal(cfg.AccessSecret, cfg.ResetSecret) ||
		bytes.Equal(cfg.RefreshSecret, cfg.ResetSecret) {
		return nil, errors.New("access, refresh, and reset secrets must be distinct")
	}

	access, err := NewSigner(KindAccess, cfg.AccessSecret, cfg.Issuer, cfg.Now)
	if err != nil {
		return nil, err
	}
	refresh, err := NewSigner(KindRefresh, cfg.RefreshSecret, cfg.Issuer, cfg.Now)
	if err != nil {
		return nil, err
	}
	reset, err := NewSigner(KindPasswordReset, cfg.ResetSecret, cfg.Issuer, cfg.Now)
	if err != nil {
		return nil, err
	}

	s := &Service{
		access:             access,
		refresh:            refresh,
		reset:              reset,
		accessTTL:          orDefault(cfg.AccessTTL, DefaultAccessTTL),
		refreshTTL:         orDefault(cfg.RefreshTTL, DefaultRefreshTTL),
		refreshExtendedTTL: orDefault(cfg.RefreshExtendedTTL, DefaultRefreshExtendedTTL),
		resetTTL:           orDefault(cfg.ResetTTL, DefaultResetTTL),
	}
	if s.refreshExtendedTTL < s.refreshTTL {
		return nil, fmt.Errorf("extended refresh ttl %s is shorter than refresh ttl %s",
			s.refreshExtendedTTL, s.refreshTTL)
	}
	return s, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// IssueAccess mints a short-lived access token.
func (s *Service) IssueAccess(email, role string) (string, error) {
	return s.access.Sign(email, role, s.accessTTL)
}

// IssueRefresh mints a refresh token; extended selects the long lifetime.
func (s *Service) IssueRefresh(email, role string, extended bool) (string, error) {
	ttl := s.refreshTTL
	if extended {
		ttl = s.refreshExtendedTTL
	}
	return s.refresh.Sign(email, role, ttl)
}

// IssuePasswordReset mints a reset token scoped to email.
func (s *Service) IssuePasswordReset(email string) (string, error) {
	return s.reset.Sign(email, "", s.resetTTL)
}

// VerifyAccess checks an access token.
func (s *Service) VerifyAccess(token string) (*Claims, error) {
	return s.access.Verify(token)
}

// VerifyRefresh checks a refresh token.
func (s *Service) VerifyRefresh(token string) (*Claims, error) {
	return s.refresh.Verify(token)
}

// VerifyPasswordReset checks a reset token. Claims.Email is the account it
// was issued for; Claims.ID identifies it for single-use enforcement.
func (s *Service) VerifyPasswordReset(token string) (*Claims, error) {
	return s.reset.Verify(token)
}

// AccessTTL reports the access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}
