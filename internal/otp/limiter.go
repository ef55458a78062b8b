// ABOUTME: Issuance limiters bounding how often codes can be requested
// ABOUTME: Per (email, purpose) resend cooldown plus max requests per window, in memory, SQLite or Redis

package otp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2389/coven-identity/internal/store"
)

// ErrRateLimited is returned when a code is requested too often.
var ErrRateLimited = errors.New("too many otp requests")

// Limiter decides whether another code may be issued for (email, purpose).
type Limiter interface {
	Allow(ctx context.Context, email string, purpose Purpose) error
}

// LimitConfig bounds issuance per (email, purpose).
type LimitConfig struct {
	Cooldown  time.Duration // minimum gap between two requests
	Window    time.Duration // counting window
	MaxIssues int           // requests allowed per window, 0 = unlimited
}

// take applies the cooldown and window to st at now. On success it records
// the request in st; on rejection st is left unchanged.
func (c LimitConfig) take(st *store.RateState, now time.Time) error {
	if c.Cooldown > 0 && !st.LastAt.IsZero() {
		if wait := st.LastAt.Add(c.Cooldown).Sub(now); wait > 0 {
			return rateLimited(wait)
		}
	}

	windowStart, count := st.WindowStart, st.Count
	if windowStart.IsZero() || (c.Window > 0 && now.Sub(windowStart) >= c.Window) {
		windowStart, count = now, 0
	}
	if c.MaxIssues > 0 && count >= c.MaxIssues {
		return rateLimited(windowStart.Add(c.Window).Sub(now))
	}

	st.WindowStart = windowStart
	st.Count = count + 1
	st.LastAt = now
	return nil
}

func rateLimited(wait time.Duration) error {
	return fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Second))
}

// MemoryLimiter is a process-local Limiter for embedders that run the
// engine in one long-lived process.
type MemoryLimiter struct {
	cfg   LimitConfig
	now   func() time.Time
	mu    sync.Mutex
	state map[string]*store.RateState
}

// NewMemoryLimiter creates an in-memory limiter. now may be nil.
func NewMemoryLimiter(cfg LimitConfig, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		cfg:   cfg,
		now:   now,
		state: make(map[string]*store.RateState),
	}
}

// Allow records a request and rejects it if the cooldown or window is exceeded.
func (l *MemoryLimiter) Allow(_ context.Context, email string, purpose Purpose) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := limitKey(email, purpose)
	st, ok := l.state[key]
	if !ok {
		st = &store.RateState{}
		l.state[key] = st
	}
	return l.cfg.take(st, l.now())
}

// RateStateStore persists limiter state; *store.SQLiteStore implements it.
type RateStateStore interface {
	UpdateRateState(ctx context.Context, key string, fn func(*store.RateState) error) error
}

// StoreLimiter keeps limiter state in a RateStateStore, so limits hold
// across processes sharing one database.
type StoreLimiter struct {
	store RateStateStore
	cfg   LimitConfig
	now   func() time.Time
}

// NewStoreLimiter creates a limiter backed by rs. now may be nil.
func NewStoreLimiter(rs RateStateStore, cfg LimitConfig, now func() time.Time) *StoreLimiter {
	if now == nil {
		now = time.Now
	}
	return &StoreLimiter{store: rs, cfg: cfg, now: now}
}

// Allow applies the limits inside a single store update.
func (l *StoreLimiter) Allow(ctx context.Context, email string, purpose Purpose) error {
	now := l.now()
	err := l.store.UpdateRateState(ctx, limitKey(email, purpose), func(st *store.RateState) error {
		return l.cfg.take(st, now)
	})
	if err != nil && !errors.Is(err, ErrRateLimited) {
		return fmt.Errorf("checking otp limits: %w", err)
	}
	return err
}

// RedisLimiter shares limits across processes through Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    LimitConfig
}

// NewRedisLimiter creates a limiter backed by client.
func NewRedisLimiter(client redis.UniversalClient, cfg LimitConfig) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg}
}

// allowScript checks the cooldown, then the window, and records the request
// only when both pass. Returns 0 when allowed, else the wait in milliseconds.
var allowScript = redis.NewScript(`
local cooldown = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
if cooldown > 0 then
	local t = redis.call("PTTL", KEYS[1])
	if t > 0 then
		return t
	end
end
if max > 0 and window > 0 then
	local c = tonumber(redis.call("GET", KEYS[2]) or "0")
	if c >= max then
		local t = redis.call("PTTL", KEYS[2])
		if t <= 0 then
			t = window
		end
		return t
	end
	if redis.call("INCR", KEYS[2]) == 1 then
		redis.call("PEXPIRE", KEYS[2], window)
	end
end
if cooldown > 0 then
	redis.call("SET", KEYS[1], "1", "PX", cooldown)
end
return 0
`)

// Allow runs the cooldown and window checks as one atomic script.
func (l *RedisLimiter) Allow(ctx context.Context, email string, purpose Purpose) error {
	key := "otp_rate:" + limitKey(email, purpose)

	wait, err := allowScript.Run(ctx, l.client,
		[]string{key + ":last", key + ":count"},
		l.cfg.Cooldown.Milliseconds(), l.cfg.Window.Milliseconds(), l.cfg.MaxIssues,
	).Int64()
	if err != nil {
		return fmt.Errorf("checking otp limits: %w", err)
	}
	if wait > 0 {
		return rateLimited(time.Duration(wait) * time.Millisecond)
	}
	return nil
}

func limitKey(email string, purpose Purpose) string {
	return email + ":" + purpose.String()
}
