// ABOUTME: JWT signer for one token kind using HS256 with its own secret
// ABOUTME: The kind is embedded in a "typ" claim and checked on verify

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum HMAC secret size in bytes.
const MinSecretLength = 32

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrShortSecret  = fmt.Errorf("secret must be at least %d bytes", MinSecretLength)
)

// Kind identifies what a token may be used for
type Kind string

const (
	KindAccess        Kind = "access"
	KindRefresh       Kind = "refresh"
	KindPasswordReset Kind = "password_reset"
)

// Claims is the verified content of a token
type Claims struct {
	Email     string
	Role      string
	Kind      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// jwtClaims is the wire form of Claims
type jwtClaims struct {
	Role string `json:"role,omitempty"`
	Type Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// Signer mints and verifies tokens of a single kind
type Signer struct {
	kind   Kind
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner creates a signer for kind. now may be nil.
func NewSigner(kind Kind, secret []byte, issuer string, now func() time.Time) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%s signer: %w", kind, ErrShortSecret)
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{kind: kind, secret: secret, issuer: issuer, now: now}, nil
}

// Sign creates a token for email with the given role and lifetime.
func (s *Signer) Sign(email, role string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwtClaims{
		Role: role,
		Type: s.kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    s.issuer,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", s.kind, err)
	}
	return signed, nil
}

// Verify validates signature, expiry, issuer, and kind, and returns the claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	var claims jwtClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpiredToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != s.kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrInvalidToken, s.kind, claims.Type)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}

	out := &Claims{
		Email: claims.Subject,
		Role:  claims.Role,
		Kind:  claims.Type,
		ID:    claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
