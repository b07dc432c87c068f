// Package cache stores generated text in Redis, keyed by prompt.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "insight_cache:"

// Key derives the cache key for a prompt.
func Key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s%x", keyPrefix, sum[:16])
}

// RedisCache wraps a Redis client for storing and retrieving generated text.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache creates a new Redis-backed text cache.
func NewRedisCache(opts Options) *RedisCache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl: opts.TTL,
	}
}

// Get retrieves the text stored for prompt.
// Returns the text and true if found, or "" and false if not.
func (r *RedisCache) Get(ctx context.Context, prompt string) (string, bool, error) {
	val, err := r.client.Get(ctx, Key(prompt)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis_cache: get: %w", err)
	}
	return val, true, nil
}

// Set stores text for prompt with the configured TTL.
func (r *RedisCache) Set(ctx context.Context, prompt, text string) error {
	if err := r.client.Set(ctx, Key(prompt), text, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis_cache: set: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
