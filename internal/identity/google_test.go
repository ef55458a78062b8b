// ABOUTME: Tests for the Google identity verifier
// ABOUTME: Uses a fake TokenValidator so no network access is needed

package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

const testClientID = "client-123.apps.googleusercontent.com"

type fakeValidator struct {
	payload *idtoken.Payload
	err     error

	gotToken    string
	gotAudience string
}

func (f *fakeValidator) Validate(_ context.Context, idToken, audience string) (*idtoken.Payload, error) {
	f.gotToken = idToken
	f.gotAudience = audience
	return f.payload, f.err
}

func validPayload() *idtoken.Payload {
	return &idtoken.Payload{
		Issuer:   "https://accounts.google.com",
		Audience: testClientID,
		Expires:  time.Now().Add(time.Hour).Unix(),
		Subject:  "google-sub-1",
		Claims: map[string]interface{}{
			"email":          "a@x.com",
			"email_verified": true,
			"name":           "Alice",
			"picture":        "https://example.com/a.png",
		},
	}
}

func TestGoogleVerifier_Valid(t *testing.T) {
	fv := &fakeValidator{payload: validPayload()}
	v, err := NewGoogleVerifier(fv, testClientID, nil)
	require.NoError(t, err)

	claims, err := v.VerifyExternalIdentity(context.Background(), "id-token")
	require.NoError(t, err)

	assert.Equal(t, "id-token", fv.gotToken)
	assert.Equal(t, testClientID, fv.gotAudience)
	assert.Equal(t, &Claims{
		Provider:      ProviderGoogle,
		Subject:       "google-sub-1",
		Email:         "a@x.com",
		Name:          "Alice",
		Picture:       "https://example.com/a.png",
		EmailVerified: true,
	}, claims)
}

func TestGoogleVerifier_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fakeValidator)
		token  string
	}{
		{
			name:   "validator error",
			mutate: func(f *fakeValidator) { f.err = errors.New("idtoken: invalid signature") },
		},
		{
			name:   "nil payload",
			mutate: func(f *fakeValidator) { f.payload = nil },
		},
		{
			name:   "audience mismatch",
			mutate: func(f *fakeValidator) { f.payload.Audience = "someone-else" },
		},
		{
			name:   "expired",
			mutate: func(f *fakeValidator) { f.payload.Expires = time.Now().Add(-time.Minute).Unix() },
		},
		{
			name:   "missing email",
			mutate: func(f *fakeValidator) { delete(f.payload.Claims, "email") },
		},
		{
			name:   "unverified email",
			mutate: func(f *fakeValidator) { f.payload.Claims["email_verified"] = false },
		},
		{
			name:   "empty token",
			mutate: func(f *fakeValidator) {},
			token:  " ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := &fakeValidator{payload: validPayload()}
			tt.mutate(fv)
			v, err := NewGoogleVerifier(fv, testClientID, nil)
			require.NoError(t, err)

			token := tt.token
			if token == "" {
				token = "id-token"
			}
			_, err = v.VerifyExternalIdentity(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidExternalToken)
		})
	}
}

func TestNewGoogleVerifier_RequiresDependencies(t *testing.T) {
	_, err := NewGoogleVerifier(nil, testClientID, nil)
	assert.Error(t, err)

	_, err = NewGoogleVerifier(&fakeValidator{}, "", nil)
	assert.Error(t, err)
}
