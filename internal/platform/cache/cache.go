// Package cache is a Redis-backed JSON read-through cache for reference data
// that changes only through administration (clinics, directions).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Cache stores JSON values under prefixed keys. A nil *Cache never hits and
// loaders run on every call. Redis failures are logged and degrade to the
// loader; they are never returned to callers.
type Cache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

func New(client redis.Cmdable, prefix string, ttl time.Duration, logger zerolog.Logger) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// NewClient parses a redis:// URL and pings the server. An empty URL disables
// caching and returns a nil client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Loader errors are returned and nothing is cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case err == nil:
		var v T
		if uerr := json.Unmarshal(data, &v); uerr == nil {
			return v, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if data, err := json.Marshal(v); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
	} else if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return v, nil
}

// Invalidate drops the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}
