package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter allows Limit requests per key in each fixed window.
// Counters are shared by every instance pointing at the same redis.
type RedisRateLimiter struct {
	rdb    redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

func NewRedisRateLimiter(rdb redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, prefix: prefix, limit: int64(limit), window: window}
}

// Allow counts one request for key. When the limit is exceeded it reports
// how long until the window resets.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}

	k := fmt.Sprintf("ratelimit:%s:%s", l.prefix, key)

	pipe := l.rdb.TxPipeline()
	pipe.SetNX(ctx, k, 0, l.window)
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit: %w", err)
	}

	if incr.Val() > l.limit {
		wait := ttl.Val()
		if wait <= 0 {
			wait = l.window
		}
		return false, wait, nil
	}
	return true, 0, nil
}
