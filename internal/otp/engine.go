// ABOUTME: OTP engine issuing and verifying one-time codes bound to (email, purpose)
// ABOUTME: Codes are generated with crypto/rand, stored via OTPStore, and delivered via Sender

package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-identity/internal/store"
)

// Default code settings.
const (
	DefaultTTL    = 5 * time.Minute
	DefaultDigits = 6
)

// ErrInvalidOTP is returned when a code is wrong, expired, or already consumed.
var ErrInvalidOTP = errors.New("invalid otp")

// Message is a code ready for out-of-band delivery.
type Message struct {
	To        string
	Purpose   Purpose
	Code      string
	ExpiresAt time.Time
	TTL       time.Duration
}

// Sender delivers codes to their owner (email, SMS, ...).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Config holds engine settings. Zero values fall back to defaults.
type Config struct {
	TTL     time.Duration
	Digits  int
	Limiter Limiter          // optional issuance limiter
	Now     func() time.Time // clock, for tests
}

// Engine issues and verifies one-time codes.
type Engine struct {
	store   store.OTPStore
	sender  Sender
	limiter Limiter
	ttl     time.Duration
	digits  int
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine creates an OTP engine over the given store and sender.
func NewEngine(s store.OTPStore, sender Sender, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:   s,
		sender:  sender,
		limiter: cfg.Limiter,
		ttl:     cfg.TTL,
		digits:  cfg.Digits,
		now:     cfg.Now,
		logger:  logger.With("component", "otp"),
	}
	if e.ttl <= 0 {
		e.ttl = DefaultTTL
	}
	if e.digits <= 0 {
		e.digits = DefaultDigits
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// TTL returns how long issued codes stay valid.
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// Issue generates a fresh code for (email, purpose), replacing any live one,
// and hands it to the sender. Exactly one deliverable code results per call.
func (e *Engine) Issue(ctx context.Context, email string, purpose Purpose) error {
	if !purpose.Valid() {
		return fmt.Errorf("issuing otp: %w", errUnknownPurpose(purpose))
	}
	email = store.NormalizeEmail(email)

	if e.limiter != nil {
		if err := e.limiter.Allow(ctx, email, purpose); err != nil {
			return err
		}
	}

	code, err := randomCode(e.digits)
	if err != nil {
		return fmt.Errorf("generating otp: %w", err)
	}

	now := e.now().UTC()
	rec := &store.OTP{
		ID:        uuid.New().String(),
		Email:     email,
		Purpose:   purpose.String(),
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(e.ttl),
	}
	if err := e.store.SaveOTP(ctx, rec); err != nil {
		return fmt.Errorf("saving otp: %w", err)
	}

	msg := Message{
		To:        email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: rec.ExpiresAt,
		TTL:       e.ttl,
	}
	if err := e.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("delivering otp: %w", err)
	}

	e.logger.Info("issued otp", "email", email, "purpose", purpose.String(), "expires_at", rec.ExpiresAt)
	return nil
}

// Verify consumes the live code for email and returns what it was issued for.
// A code verifies at most once; mismatched, expired, or reused codes fail
// with ErrInvalidOTP.
func (e *Engine) Verify(ctx context.Context, email, code string) (Purpose, error) {
	email = store.NormalizeEmail(email)

	rec, err := e.store.ConsumeOTP(ctx, email, code, e.now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Debug("otp verification failed", "email", email)
		return PurposeUnknown, ErrInvalidOTP
	}
	if err != nil {
		return PurposeUnknown, fmt.Errorf("consuming otp: %w", err)
	}

	purpose, err := ParsePurpose(rec.Purpose)
	if err != nil {
		e.logger.Warn("consumed otp with unknown purpose", "email", email, "purpose", rec.Purpose)
		return PurposeUnknown, ErrInvalidOTP
	}

	e.logger.Info("verified otp", "email", email, "purpose", purpose.String())
	return purpose, nil
}

// PurgeExpired removes expired and consumed codes from the store.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := e.store.DeleteExpiredOTPs(ctx, e.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purging otps: %w", err)
	}
	return n, nil
}

func errUnknownPurpose(p Purpose) error {
	return fmt.Errorf("unknown otp purpose %d", int(p))
}

// randomCode returns a zero-padded decimal code of the given length
func randomCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
