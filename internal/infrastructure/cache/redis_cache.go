package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/atjeff/kratos-echo/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "kratos-echo:session:"

// RedisSessionCache shares validated sessions between application replicas.
// Implements domain.SessionCache. Redis failures degrade to cache misses.
type RedisSessionCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisSessionCache wraps an existing client.
func NewRedisSessionCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSessionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSessionCache{
		client: client,
		ttl:    ttl,
		prefix: defaultKeyPrefix,
		logger: logger,
	}
}

// NewRedisSessionCacheWithURL creates a cache from a redis:// URL.
func NewRedisSessionCacheWithURL(url string, ttl time.Duration, logger *slog.Logger) (*RedisSessionCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisSessionCache(redis.NewClient(opts), ttl, logger), nil
}

// Get retrieves a cached session by key.
func (c *RedisSessionCache) Get(ctx context.Context, key string) (*domain.CachedSession, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "session cache read failed", "error", err)
		}
		return nil, false
	}

	var session domain.CachedSession
	if err := json.Unmarshal(raw, &session); err != nil {
		c.logger.WarnContext(ctx, "session cache entry corrupt", "error", err)
		return nil, false
	}
	return &session, true
}

// Set stores session data with the cache TTL, capped at the session expiry.
func (c *RedisSessionCache) Set(ctx context.Context, key string, session domain.CachedSession) {
	ttl := c.ttl
	if !session.ExpiresAt.IsZero() {
		if remaining := time.Until(session.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "session cache write failed", "error", err)
	}
}

// Delete removes a cached session.
func (c *RedisSessionCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.WarnContext(ctx, "session cache delete failed", "error", err)
	}
}

// Close closes the Redis connection.
func (c *RedisSessionCache) Close() error {
	return c.client.Close()
}
