// Package cache provides an optional Redis-backed read cache for resolved
// schemas and route graphs on the ingest hot path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autometric/autometric/pkg/types"
)

const defaultTTL = 30 * time.Second

// Cache is a small JSON-value cache with a short TTL. Resolution results
// are cheap to recompute, so staleness is bounded by the TTL and writers
// only need best-effort invalidation.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg *types.CacheConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := defaultTTL
	if cfg.TTL != "" {
		if d, err := time.ParseDuration(cfg.TTL); err == nil && d > 0 {
			ttl = d
		}
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "autometric"
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}, nil
}

// Get loads a cached JSON value into v, reporting whether it was present.
func (c *Cache) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+":"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v as JSON under key with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+":"+key, data, c.ttl).Err()
}

// Delete removes keys; used by override writers to invalidate readers.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + ":" + k
	}
	return c.client.Del(ctx, full...).Err()
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
