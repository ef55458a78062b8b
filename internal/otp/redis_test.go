// ABOUTME: Tests for the Redis OTP store and the issuance limiters
// ABOUTME: Runs against an in-process miniredis server

package otp

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-identity/internal/store"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Lifecycle(t *testing.T) {
	_, client := newTestRedis(t)
	e, sender, _ := newTestEngine(t, NewRedisStore(client, nil))
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com", PurposeForgotPassword))
	code := sender.last(t).Code

	purpose, err := e.Verify(ctx, "A@x.com", code)
	require.NoError(t, err)
	assert.Equal(t, PurposeForgotPassword, purpose)

	_, err = e.Verify(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestRedisStore_ReissueInvalidates(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisStore(client, nil)
	ctx := context.Background()
	now := time.Now()

	save := func(code string) {
		require.NoError(t, s.SaveOTP(ctx, &store.OTP{
			Email: "a@x.com", Purpose: PurposeSignup.String(), Code: code,
			IssuedAt: now, ExpiresAt: now.Add(time.Minute),
		}))
	}
	save("111111")
	save("222222")

	_, err := s.ConsumeOTP(ctx, "a@x.com", "111111", now)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.ConsumeOTP(ctx, "a@x.com", "222222", now)
	require.NoError(t, err)
	assert.Equal(t, "signup", got.Purpose)
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, client := newTestRedis(t)
	e, sender, _ := newTestEngine(t, NewRedisStore(client, nil))
	ctx := context.Background()

	require.NoError(t, e.Issue(ctx, "a@x.com", PurposeSignup))
	code := sender.last(t).Code

	mr.FastForward(6 * time.Minute)

	_, err := e.Verify(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestRedisStore_RejectsExpiredRecord(t *testing.T) {
	_, client := newTestRedis(t)
	s := NewRedisStore(client, nil)
	now := time.Now()

	err := s.SaveOTP(context.Background(), &store.OTP{
		Email: "a@x.com", Purpose: "signup", Code: "1",
		IssuedAt: now, ExpiresAt: now,
	})
	assert.Error(t, err)
}

func TestMemoryLimiter_Cooldown(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(LimitConfig{Cooldown: 30 * time.Second}, clock.Now)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
	assert.ErrorIs(t, l.Allow(ctx, "a@x.com", PurposeSignup), ErrRateLimited)

	// Other purposes and owners are independent
	assert.NoError(t, l.Allow(ctx, "a@x.com", PurposeForgotPassword))
	assert.NoError(t, l.Allow(ctx, "b@x.com", PurposeSignup))

	clock.Advance(31 * time.Second)
	assert.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
}

func TestMemoryLimiter_Window(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(LimitConfig{Window: time.Hour, MaxIssues: 2}, clock.Now)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
	require.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
	assert.ErrorIs(t, l.Allow(ctx, "a@x.com", PurposeSignup), ErrRateLimited)

	clock.Advance(time.Hour)
	assert.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
}

func TestRedisLimiter(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, LimitConfig{Cooldown: 30 * time.Second, Window: time.Hour, MaxIssues: 2})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
	assert.ErrorIs(t, l.Allow(ctx, "a@x.com", PurposeSignup), ErrRateLimited, "cooldown")

	// The rejected request did not use up the window
	mr.FastForward(31 * time.Second)
	require.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))

	mr.FastForward(31 * time.Second)
	assert.ErrorIs(t, l.Allow(ctx, "a@x.com", PurposeSignup), ErrRateLimited, "window exhausted")

	mr.FastForward(time.Hour)
	assert.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
}

func TestRedisLimiter_CooldownRejectionsKeepQuota(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLimiter(client, LimitConfig{Cooldown: 30 * time.Second, Window: time.Hour, MaxIssues: 2})
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, l.Allow(ctx, "a@x.com", PurposeSignup), ErrRateLimited)
	}
	count, err := client.Get(ctx, "otp_rate:a@x.com:signup:count").Int()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mr.FastForward(31 * time.Second)
	assert.NoError(t, l.Allow(ctx, "a@x.com", PurposeSignup))
}

// memoryRateStore counts updates so tests can see the limiter used it
type memoryRateStore struct {
	state   map[string]store.RateState
	updates int
}

func (m *memoryRateStore) UpdateRateState(_ context.Context, key string, fn func(*store.RateState) error) error {
	m.updates++
	st := m.state[key]
	if err := fn(&st); err != nil {
		return err
	}
	m.state[key] = st
	return nil
}

func TestStoreLimiter_SharedStateAcrossLimiters(t *testing.T) {
	clock := newFakeClock()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "rate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	cfg := LimitConfig{Cooldown: 30 * time.Second, Window: time.Hour, MaxIssues: 2}
	ctx := context.Background()

	// Two limiters over one database stand in for two processes
	first := NewStoreLimiter(db, cfg, clock.Now)
	second := NewStoreLimiter(db, cfg, clock.Now)

	require.NoError(t, first.Allow(ctx, "a@x.com", PurposeSignup))
	assert.ErrorIs(t, second.Allow(ctx, "a@x.com", PurposeSignup), ErrRateLimited, "cooldown")
	assert.NoError(t, second.Allow(ctx, "a@x.com", PurposeForgotPassword))

	clock.Advance(31 * time.Second)
	require.NoError(t, second.Allow(ctx, "a@x.com", PurposeSignup))

	clock.Advance(31 * time.Second)
	assert.ErrorIs(t, first.Allow(ctx, "a@x.com", PurposeSignup), ErrRateLimited, "window exhausted")

	clock.Advance(time.Hour)
	assert.NoError(t, first.Allow(ctx, "a@x.com", PurposeSignup))
}

func TestStoreLimiter_StoreFailure(t *testing.T) {
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "rate.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	l := NewStoreLimiter(db, LimitConfig{Cooldown: time.Second}, nil)
	err = l.Allow(context.Background(), "a@x.com", PurposeSignup)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestLimiters_Agree(t *testing.T) {
	cfg := LimitConfig{Cooldown: 10 * time.Second, Window: time.Minute, MaxIssues: 3}
	ctx := context.Background()
	clock := newFakeClock()
	mem := NewMemoryLimiter(cfg, clock.Now)
	rs := &memoryRateStore{state: map[string]store.RateState{}}
	st := NewStoreLimiter(rs, cfg, clock.Now)

	for i := 0; i < 12; i++ {
		memErr := mem.Allow(ctx, "a@x.com", PurposeSignup)
		stErr := st.Allow(ctx, "a@x.com", PurposeSignup)
		assert.Equal(t, memErr == nil, stErr == nil, "step %d", i)
		clock.Advance(4 * time.Second)
	}
	assert.Equal(t, 12, rs.updates)
}
