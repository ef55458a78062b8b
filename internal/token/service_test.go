// ABOUTME: Tests for the token service and signers
// ABOUTME: Covers lifetimes, tampering, expiry, and cross-kind replay rejection

package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 32-byte secrets that meet MinSecretLength.
var (
	testAccessSecret  = []byte("access-token-test-secret-32byte!")
	testRefreshSecret = []byte("refresh-token-test-secret-32byte")
	testResetSecret   = []byte("reset-token-test-secret-32bytes!")
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(Config{
		Issuer:        "coven-identity",
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		ResetSecret:   testResetSecret,
		Now:           c.Now,
	})
	require.NoError(t, err)
	return svc, c
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testAccessSecret,
		ResetSecret:   testResetSecret,
	})
	assert.Error(t, err, "shared secrets must be rejected")

	_, err = NewService(Config{
		AccessSecret:  []byte("short-a"),
		RefreshSecret: testRefreshSecret,
		ResetSecret:   testResetSecret,
	})
	assert.ErrorIs(t, err, ErrShortSecret)

	_, err = NewService(Config{
		AccessSecret:       testAccessSecret,
		RefreshSecret:      testRefreshSecret,
		ResetSecret:        testResetSecret,
		RefreshTTL:         time.Hour,
		RefreshExtendedTTL: time.Minute,
	})
	assert.Error(t, err)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	svc, c := newTestService(t)

	tok, err := svc.IssueAccess("a@x.com", "admin")
	require.NoError(t, err)

	claims, err := svc.VerifyAccess(tok)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, KindAccess, claims.Kind)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, c.now.Add(DefaultAccessTTL), claims.ExpiresAt.UTC())
	assert.Equal(t, DefaultAccessTTL, svc.AccessTTL())
}

func TestAccessToken_Expires(t *testing.T) {
	svc, c := newTestService(t)

	tok, err := svc.IssueAccess("a@x.com", "user")
	require.NoError(t, err)

	c.now = c.now.Add(DefaultAccessTTL + time.Second)
	_, err = svc.VerifyAccess(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	tok, err := svc.IssueRefresh("a@x.com", "business", false)
	require.NoError(t, err)

	claims, err := svc.VerifyRefresh(tok)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "business", claims.Role)
}

func TestRefreshToken_ExtendedOutlivesShort(t *testing.T) {
	svc, c := newTestService(t)

	short, err := svc.IssueRefresh("a@x.com", "user", false)
	require.NoError(t, err)
	long, err := svc.IssueRefresh("a@x.com", "user", true)
	require.NoError(t, err)

	c.now = c.now.Add(DefaultRefreshTTL + time.Hour)

	_, err = svc.VerifyRefresh(short)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = svc.VerifyRefresh(long)
	assert.NoError(t, err)

	c.now = c.now.Add(DefaultRefreshExtendedTTL)
	_, err = svc.VerifyRefresh(long)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestPasswordResetToken_RoundTrip(t *testing.T) {
	svc, c := newTestService(t)

	tok, err := svc.IssuePasswordReset("a@x.com")
	require.NoError(t, err)

	claims, err := svc.VerifyPasswordReset(tok)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, KindPasswordReset, claims.Kind)
	assert.NotEmpty(t, claims.ID)

	c.now = c.now.Add(DefaultResetTTL + time.Second)
	_, err = svc.VerifyPasswordReset(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTamperedTokenRejected(t *testing.T) {
	svc, _ := newTestService(t)

	tok, err := svc.IssueRefresh("a@x.com", "user", false)
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	// Swap the payload for one claiming admin, keeping the old signature
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Role: "admin",
		Type: KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a@x.com",
			Issuer:    "coven-identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SigningString()
	require.NoError(t, err)
	tampered := forged + "." + parts[2]

	_, err = svc.VerifyRefresh(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.VerifyRefresh(tok[:len(tok)-2] + "xx")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.VerifyRefresh("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCrossKindReplayRejected(t *testing.T) {
	svc, _ := newTestService(t)

	access, err := svc.IssueAccess("a@x.com", "user")
	require.NoError(t, err)
	refresh, err := svc.IssueRefresh("a@x.com", "user", true)
	require.NoError(t, err)
	reset, err := svc.IssuePasswordReset("a@x.com")
	require.NoError(t, err)

	_, err = svc.VerifyRefresh(reset)
	assert.ErrorIs(t, err, ErrInvalidToken, "reset token accepted as refresh")
	_, err = svc.VerifyAccess(reset)
	assert.ErrorIs(t, err, ErrInvalidToken, "reset token accepted as access")
	_, err = svc.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token accepted as refresh")
	_, err = svc.VerifyPasswordReset(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token accepted as reset")
}

func TestSigner_KindCheckedEvenWithSharedSecret(t *testing.T) {
	secret := []byte("shared-signing-secret-32-bytes!!")
	reset, err := NewSigner(KindPasswordReset, secret, "", nil)
	require.NoError(t, err)
	refresh, err := NewSigner(KindRefresh, secret, "", nil)
	require.NoError(t, err)

	tok, err := reset.Sign("a@x.com", "", time.Minute)
	require.NoError(t, err)

	_, err = refresh.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_RejectsOtherAlgorithms(t *testing.T) {
	s, err := NewSigner(KindAccess, testAccessSecret, "", nil)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwtClaims{
		Type: KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "a@x.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = s.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_WrongIssuer(t *testing.T) {
	a, err := NewSigner(KindAccess, testAccessSecret, "one", nil)
	require.NoError(t, err)
	b, err := NewSigner(KindAccess, testAccessSecret, "two", nil)
	require.NoError(t, err)

	tok, err := a.Sign("a@x.com", "user", time.Minute)
	require.NoError(t, err)
	_, err = b.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
