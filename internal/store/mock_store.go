// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory UserStore and OTPStore for testing.
// All checks and writes happen under one lock, so uniqueness and
// consume-once hold under concurrent use just like the SQLite store.
type MockStore struct {
	mu      sync.RWMutex
	users   map[string]*User // keyed by normalized email
	byPhone map[string]string
	otps    []*OTP
	audit   []AuditEntry

	// Err, when set, is returned by every method to simulate backend failure
	Err error
}

// Ensure MockStore implements the store interfaces
var (
	_ UserStore = (*MockStore)(nil)
	_ OTPStore  = (*MockStore)(nil)
	_ AuditLog  = (*MockStore)(nil)
)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:   make(map[string]*User),
		byPhone: make(map[string]string),
	}
}

// UserExists reports whether the email or phone is taken.
func (m *MockStore) UserExists(ctx context.Context, field UserField, value string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch field {
	case FieldEmail:
		_, ok := m.users[NormalizeEmail(value)]
		return ok, nil
	case FieldPhone:
		_, ok := m.byPhone[strings.TrimSpace(value)]
		return ok, nil
	default:
		return false, fmt.Errorf("unknown user field %q", field)
	}
}

// CreateUser stores a copy of user, rejecting duplicate email or phone.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	user.Email = NormalizeEmail(user.Email)
	user.Phone = strings.TrimSpace(user.Phone)
	if _, ok := m.users[user.Email]; ok {
		return ErrEmailExists
	}
	if user.Phone != "" {
		if _, ok := m.byPhone[user.Phone]; ok {
			return ErrPhoneExists
		}
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
		user.UpdatedAt = user.CreatedAt
	}

	m.users[user.Email] = copyUser(user)
	if user.Phone != "" {
		m.byPhone[user.Phone] = user.Email
	}
	return nil
}

// GetUserByEmail returns a copy of the stored user.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

// SetEmailVerified marks the user's email as verified.
func (m *MockStore) SetEmailVerified(ctx context.Context, email string) error {
	return m.update(email, func(u *User) { u.EmailVerified = true })
}

// SetPasswordHash replaces the user's password hash.
func (m *MockStore) SetPasswordHash(ctx context.Context, email, passwordHash string) error {
	return m.update(email, func(u *User) { u.PasswordHash = passwordHash })
}

// LinkProvider records or refreshes a provider identifier.
func (m *MockStore) LinkProvider(ctx context.Context, email, provider, token string) error {
	return m.update(email, func(u *User) {
		if u.Providers == nil {
			u.Providers = make(map[string]string)
		}
		u.Providers[provider] = token
	})
}

func (m *MockStore) update(email string, fn func(*User)) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[NormalizeEmail(email)]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// UserCount returns the number of stored users.
func (m *MockStore) UserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}

// SaveOTP invalidates live codes for the pair and stores otp.
func (m *MockStore) SaveOTP(ctx context.Context, otp *OTP) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	otp.Email = NormalizeEmail(otp.Email)
	for _, o := range m.otps {
		if o.Email == otp.Email && o.Purpose == otp.Purpose && o.ConsumedAt == nil {
			issued := otp.IssuedAt
			o.ConsumedAt = &issued
		}
	}
	c := *otp
	m.otps = append(m.otps, &c)
	return nil
}

// ConsumeOTP marks the newest live matching code as consumed.
func (m *MockStore) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*OTP, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	email = NormalizeEmail(email)
	for i := len(m.otps) - 1; i >= 0; i-- {
		o := m.otps[i]
		if o.Email != email || o.Code != code || o.ConsumedAt != nil {
			continue
		}
		if !o.ExpiresAt.After(now) {
			continue
		}
		consumed := now
		o.ConsumedAt = &consumed
		c := *o
		return &c, nil
	}
	return nil, ErrNotFound
}

// DeleteExpiredOTPs drops expired and consumed codes.
func (m *MockStore) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.otps[:0]
	var removed int64
	for _, o := range m.otps {
		if o.ConsumedAt != nil || !o.ExpiresAt.After(now) {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	m.otps = kept
	return removed, nil
}

// OTPs returns copies of every stored code, live or not.
func (m *MockStore) OTPs() []OTP {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]OTP, 0, len(m.otps))
	for _, o := range m.otps {
		out = append(out, *o)
	}
	return out
}

// AppendAuditLog records e in memory.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if m.Err != nil {
		return m.Err
	}
	if err := prepareAuditEntry(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog filters recorded entries, newest first.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		switch {
		case f.Since != nil && e.Timestamp.Before(*f.Since):
			continue
		case f.Until != nil && e.Timestamp.After(*f.Until):
			continue
		case f.Email != nil && e.Email != NormalizeEmail(*f.Email):
			continue
		case f.Action != nil && e.Action != *f.Action:
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit := normalizeAuditLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyUser(u *User) *User {
	c := *u
	if u.Providers != nil {
		c.Providers = make(map[string]string, len(u.Providers))
		for k, v := range u.Providers {
			c.Providers[k] = v
		}
	}
	return &c
}
