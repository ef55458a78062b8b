// ABOUTME: Redis-backed replay guard shared across processes
// ABOUTME: SET NX with a TTL reaching the token's own expiry

package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard stores spent IDs as keys that expire with the token.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisGuard creates a guard using keys under "replay:".
func NewRedisGuard(client redis.UniversalClient) *RedisGuard {
	return &RedisGuard{client: client, prefix: "replay:", now: time.Now}
}

// Spend is atomic across every process sharing client's database.
func (g *RedisGuard) Spend(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(g.now())
	if ttl <= 0 {
		return true, nil
	}
	ok, err := g.client.SetNX(ctx, g.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recording spent token: %w", err)
	}
	return ok, nil
}
