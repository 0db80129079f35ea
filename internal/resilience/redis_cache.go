package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "verdict:cache:"

// RedisCache shares cached results between server and worker processes.
// Any Redis failure falls back to an in-process MemoryCache so a cache outage
// never fails a run.
type RedisCache struct {
	client   redis.Cmdable
	prefix   string
	fallback *MemoryCache
}

func NewRedisCache(client redis.Cmdable, fallback *MemoryCache) *RedisCache {
	if fallback == nil {
		fallback = NewMemoryCache()
	}
	return &RedisCache{
		client:   client,
		prefix:   defaultKeyPrefix,
		fallback: fallback,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == nil {
		return val, true
	}
	if errors.Is(err, redis.Nil) {
		return c.fallback.Get(ctx, key)
	}

	slog.WarnContext(ctx, "redis cache get failed, using memory cache", "error", err)
	return c.fallback.Get(ctx, key)
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		slog.WarnContext(ctx, "redis cache set failed, using memory cache", "error", err)
		c.fallback.Set(ctx, key, value, ttl)
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) bool {
	memDeleted := c.fallback.Delete(ctx, key)

	n, err := c.client.Del(ctx, c.prefix+key).Result()
	if err != nil {
		slog.WarnContext(ctx, "redis cache delete failed", "error", err)
		return memDeleted
	}
	return n > 0 || memDeleted
}
