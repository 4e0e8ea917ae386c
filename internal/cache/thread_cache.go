// Package cache holds the public comment thread cache and the redis-backed
// request limiter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"workplacemapping/internal/domain"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const DefaultThreadTTL = 5 * time.Minute

func threadKey(postID string) string {
	return fmt.Sprintf("comments:post:%s", postID)
}

// RedisThreadCache stores each post's approved threads as one JSON value.
type RedisThreadCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisThreadCache(rdb redis.UniversalClient, ttl time.Duration) *RedisThreadCache {
	if ttl <= 0 {
		ttl = DefaultThreadTTL
	}
	return &RedisThreadCache{rdb: rdb, ttl: ttl}
}

func (c *RedisThreadCache) Get(ctx context.Context, postID string) ([]domain.Thread, bool, error) {
	raw, err := c.rdb.Get(ctx, threadKey(postID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var threads []domain.Thread
	if err := json.Unmarshal(raw, &threads); err != nil {
		return nil, false, fmt.Errorf("decode cached threads: %w", err)
	}
	return threads, true, nil
}

func (c *RedisThreadCache) Set(ctx context.Context, postID string, threads []domain.Thread) error {
	if threads == nil {
		threads = []domain.Thread{}
	}
	b, err := json.Marshal(threads)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, threadKey(postID), b, c.ttl).Err()
}

func (c *RedisThreadCache) Invalidate(ctx context.Context, postID string) error {
	return c.rdb.Del(ctx, threadKey(postID)).Err()
}

// MemoryThreadCache is the single-process fallback when redis is not
// configured.
type MemoryThreadCache struct {
	items *gocache.Cache
}

func NewMemoryThreadCache(ttl time.Duration) *MemoryThreadCache {
	if ttl <= 0 {
		ttl = DefaultThreadTTL
	}
	return &MemoryThreadCache{items: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryThreadCache) Get(_ context.Context, postID string) ([]domain.Thread, bool, error) {
	v, ok := c.items.Get(threadKey(postID))
	if !ok {
		return nil, false, nil
	}
	threads, ok := v.([]domain.Thread)
	return threads, ok, nil
}

func (c *MemoryThreadCache) Set(_ context.Context, postID string, threads []domain.Thread) error {
	c.items.SetDefault(threadKey(postID), threads)
	return nil
}

func (c *MemoryThreadCache) Invalidate(_ context.Context, postID string) error {
	c.items.Delete(threadKey(postID))
	return nil
}
