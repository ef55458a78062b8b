// ABOUTME: Redis-backed OTP store for deployments sharing codes across processes
// ABOUTME: One key per (email, purpose) with TTL; verification is a Lua compare-and-delete

package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/2389/coven-identity/internal/store"
)

// consumeScript deletes the first key whose value equals ARGV[1] and
// returns its 1-based index, or 0 when nothing matched.
var consumeScript = redis.NewScript(`
for i, key in ipairs(KEYS) do
	if redis.call("GET", key) == ARGV[1] then
		redis.call("DEL", key)
		return i
	end
end
return 0
`)

// RedisStore implements store.OTPStore on Redis. Expiry is enforced by key
// TTL, so expired codes disappear on their own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// Ensure RedisStore implements store.OTPStore
var _ store.OTPStore = (*RedisStore)(nil)

// NewRedisStore creates an OTP store on client. Keys are namespaced under "otp:".
func NewRedisStore(client redis.UniversalClient, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: client,
		prefix: "otp",
		logger: logger.With("component", "otp_redis"),
	}
}

func (r *RedisStore) key(email, purpose string) string {
	return r.prefix + ":" + store.NormalizeEmail(email) + ":" + purpose
}

// SaveOTP overwrites the live code for (email, purpose); the old code stops
// verifying immediately.
func (r *RedisStore) SaveOTP(ctx context.Context, otp *store.OTP) error {
	ttl := otp.ExpiresAt.Sub(otp.IssuedAt)
	if ttl <= 0 {
		return fmt.Errorf("otp already expired")
	}
	if err := r.client.Set(ctx, r.key(otp.Email, otp.Purpose), otp.Code, ttl).Err(); err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}
	r.logger.Debug("stored otp", "email", store.NormalizeEmail(otp.Email), "purpose", otp.Purpose, "ttl", ttl)
	return nil
}

// ConsumeOTP atomically deletes the code if it matches one of the email's
// live codes. now is unused; Redis expires keys itself.
func (r *RedisStore) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*store.OTP, error) {
	keys := make([]string, len(Purposes))
	for i, p := range Purposes {
		keys[i] = r.key(email, p.String())
	}

	idx, err := consumeScript.Run(ctx, r.client, keys, code).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("consuming otp: %w", err)
	}
	if idx < 1 || idx > len(Purposes) {
		return nil, store.ErrNotFound
	}

	consumed := now
	return &store.OTP{
		Email:      store.NormalizeEmail(email),
		Purpose:    Purposes[idx-1].String(),
		Code:       code,
		ConsumedAt: &consumed,
	}, nil
}

// DeleteExpiredOTPs is a no-op; key TTLs handle expiry.
func (r *RedisStore) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
