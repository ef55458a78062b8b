// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, verification, role gates and anonymous passthrough

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/2389/coven-identity/internal/store"
)

type stubAuthenticator struct {
	tokens map[string]*Identity
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (*Identity, error) {
	if id, ok := s.tokens[token]; ok {
		return id, nil
	}
	return nil, ErrInvalidToken
}

func newStub() *stubAuthenticator {
	return &stubAuthenticator{tokens: map[string]*Identity{
		"user-token":  {Email: "u@x.com", Role: store.RoleUser},
		"admin-token": {Email: "root@x.com", Role: store.RoleAdmin},
	}}
}

func serve(h http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	var got *Identity
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := serve(HTTPAuthMiddleware(newStub())(handler), "Bearer user-token")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got == nil || got.Email != "u@x.com" {
		t.Errorf("expected identity u@x.com in context, got %v", got)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty token", "Bearer ", "empty token"},
		{"invalid token", "Bearer forged", "invalid or expired token"},
	}

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	mw := HTTPAuthMiddleware(newStub())(handler)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(mw, tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("expected body to contain %q, got %q", tt.wantMsg, rec.Body.String())
			}
		})
	}
	if called {
		t.Error("handler should not run for rejected requests")
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	chain := HTTPAuthMiddleware(newStub())(RequireRole(store.RoleBusiness)(ok))

	if rec := serve(chain, "Bearer user-token"); rec.Code != http.StatusForbidden {
		t.Errorf("user: expected 403, got %d", rec.Code)
	}
	if rec := serve(chain, "Bearer admin-token"); rec.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", rec.Code)
	}

	// Without the auth middleware there is no identity
	if rec := serve(RequireRole(store.RoleUser)(ok), "Bearer user-token"); rec.Code != http.StatusUnauthorized {
		t.Errorf("no identity: expected 401, got %d", rec.Code)
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	var got *Identity
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mw := OptionalAuthMiddleware(newStub())(handler)

	for _, header := range []string{"", "Bearer forged"} {
		got = nil
		if rec := serve(mw, header); rec.Code != http.StatusOK {
			t.Errorf("%q: expected 200, got %d", header, rec.Code)
		}
		if got != nil {
			t.Errorf("%q: expected anonymous request, got %v", header, got)
		}
	}

	serve(mw, "Bearer admin-token")
	if got == nil || got.Role != store.RoleAdmin {
		t.Errorf("expected admin identity, got %v", got)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tok, msg := extractBearerToken("Bearer abc.def.ghi")
	if tok != "abc.def.ghi" || msg != "" {
		t.Errorf("extractBearerToken() = %q, %q", tok, msg)
	}
}

func TestHTTPAuthMiddleware_WithService(t *testing.T) {
	h := newHarness(t)
	access, err := h.svc.tokens.IssueAccess("a@x.com", string(store.RoleBusiness))
	if err != nil {
		t.Fatalf("IssueAccess() error = %v", err)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	chain := HTTPAuthMiddleware(h.svc)(RequireRole(store.RoleBusiness)(ok))
	if rec := serve(chain, "Bearer "+access); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
