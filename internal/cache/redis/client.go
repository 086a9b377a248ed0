// Package redis implements the optional response cache using go-redis/v9.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// ResponseCache stores serialized engine responses under a key prefix.
type ResponseCache struct {
	rdb    *redis.Client
	prefix string
}

// New creates a ResponseCache and pings the server to verify connectivity.
func New(ctx context.Context, cfg ClientConfig) (*ResponseCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewFromClient(rdb, cfg.Prefix), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb *redis.Client, prefix string) *ResponseCache {
	if prefix == "" {
		prefix = "streamsizer:"
	}
	return &ResponseCache{rdb: rdb, prefix: prefix}
}

// Get returns the cached payload for key. A missing key is (nil, false, nil).
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores payload under key for ttl.
func (c *ResponseCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *ResponseCache) Close() error {
	return c.rdb.Close()
}
