package summary

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ledger/internal/cache"
	"ledger/internal/log"
)

// Cache remembers generated summaries by fingerprint. Lookups that fail are
// treated as misses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// LRUCache adapts an in-process LRU.
type LRUCache struct {
	lru *cache.LRUCache[string]
}

func NewLRUCache(lru *cache.LRUCache[string]) *LRUCache {
	return &LRUCache{lru: lru}
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool) {
	return c.lru.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key, value string) {
	c.lru.Set(key, value)
}

// RedisCache shares summaries between processes. Redis failures degrade to
// misses and are logged, never returned.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *log.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: prefix + "summary:",
		ttl:    ttl,
		logger: log.OrDefault(logger, log.ComponentCache),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false
	case err != nil:
		c.logger.WarnContext(ctx, "Summary cache read failed", log.FieldError, err, "key", c.prefix+key)
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Summary cache write failed", log.FieldError, err, "key", c.prefix+key)
	}
}
