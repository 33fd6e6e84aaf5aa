// Package cache memoizes tool call results in Redis. Keys are derived
// from the tool id and fully resolved arguments, so two steps with the
// same inputs share one entry regardless of which chain ran them.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "toolweave:result:"

// ResultCache stores tool outputs keyed by (tool id, arguments).
type ResultCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis at addr. ttl <= 0 means entries never expire.
func New(addr string, ttl time.Duration) *ResultCache {
	return &ResultCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// Ping verifies the Redis connection.
func (c *ResultCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// Get returns the cached output for key. The second return is false on miss.
func (c *ResultCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, true, nil
}

// Put stores output under key.
func (c *ResultCache) Put(ctx context.Context, key, output string) error {
	if err := c.rdb.Set(ctx, keyPrefix+key, output, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}

// Clear removes every cached result. Other keys in the same Redis
// instance are untouched.
func (c *ResultCache) Clear(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache: clear %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: clear scan: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *ResultCache) Close() error {
	return c.rdb.Close()
}
