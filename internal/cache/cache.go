// Package cache is the read-through, invalidate-on-write layer in front of the
// post store. Redis is optional: without a client, or while Redis is down,
// every lookup is computed directly and invalidation is skipped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
)

const scanBatch = 100

// tombstone marks an entry whose entity was deleted. It is never decoded and
// keeps readers that raced with the delete from writing the old value back.
const tombstone = "\x00deleted"

func PostKey(id string) string {
	return "post:" + id
}

func PostListKey(page, size int) string {
	return fmt.Sprintf("%s%d:%d", PostListPrefix, page, size)
}

// PostListPrefix matches every cached page of the post listing.
const PostListPrefix = "post-list:"

type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// New wraps client. A nil client yields a disabled cache.
func New(client *redis.Client, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, logger: logger}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

type lookup int

const (
	miss lookup = iota
	hit
	deleted
)

// GetOrCompute returns the value cached under key, or runs compute and caches
// its result for ttl. Errors from compute are returned and nothing is cached.
// Concurrent misses on the same key all run compute; the first result stored
// wins. Behind a tombstone compute always runs and nothing is stored.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, compute func(ctx context.Context) (T, error)) (T, error) {
	v, state := load[T](ctx, c, key)
	if state == hit {
		metrics.CacheHits.Inc()
		return v, nil
	}
	metrics.CacheMisses.Inc()

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if state == miss {
		store(ctx, c, key, v, ttl)
	}
	return v, nil
}

func load[T any](ctx context.Context, c *Cache, key string) (T, lookup) {
	var v T
	if !c.Enabled() {
		return v, miss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			metrics.CacheErrors.WithLabelValues("get").Inc()
			c.logger.Warn("cache read failed, computing directly", "key", key, "error", err)
		}
		return v, miss
	}
	if string(data) == tombstone {
		return v, deleted
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("dropping undecodable cache entry", "key", key, "error", err)
		_ = c.client.Del(ctx, key).Err()
		var zero T
		return zero, miss
	}
	return v, hit
}

func store[T any](ctx context.Context, c *Cache, key string, v T, ttl time.Duration) {
	if !c.Enabled() || ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache value not serializable", "key", key, "error", err)
		return
	}
	if err := c.client.SetNX(ctx, key, data, ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Invalidate deletes keys. A failure is logged and swallowed; the entries then
// expire with their TTL.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("del").Inc()
		c.logger.Error("cache invalidation failed", "keys", keys, "error", err)
	}
}

// Tombstone replaces the entry under key with a deletion marker for ttl.
// Unlike Invalidate it also stops a read that started before the delete from
// caching the old value afterwards.
func (c *Cache) Tombstone(ctx context.Context, key string, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Set(ctx, key, tombstone, ttl).Err(); err != nil {
		metrics.CacheErrors.WithLabelValues("set").Inc()
		c.logger.Error("cache tombstone failed", "key", key, "error", err)
		c.Invalidate(ctx, key)
	}
}

// InvalidatePattern deletes every key starting with prefix.
func (c *Cache) InvalidatePattern(ctx context.Context, prefix string) {
	if !c.Enabled() {
		return
	}
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			metrics.CacheErrors.WithLabelValues("scan").Inc()
			c.logger.Error("cache pattern invalidation failed", "prefix", prefix, "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				metrics.CacheErrors.WithLabelValues("del").Inc()
				c.logger.Error("cache pattern invalidation failed", "prefix", prefix, "error", err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
