package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docuvet/docuvet/internal/core"
)

// RedisConfigCache implements the ConfigCache port on Redis. It caches
// resolved document-type configs; all failures are surfaced to the caller,
// which treats them as misses.
type RedisConfigCache struct {
	client redis.UniversalClient
}

var _ core.ConfigCache = (*RedisConfigCache)(nil)

// NewRedisConfigCache creates a RedisConfigCache with the given Redis client.
func NewRedisConfigCache(client redis.UniversalClient) *RedisConfigCache {
	return &RedisConfigCache{client: client}
}

// Get retrieves a cached value. Returns ErrCacheMiss when the key is absent.
func (r *RedisConfigCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	result, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return result, nil
}

// Set stores a value with the given TTL.
func (r *RedisConfigCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key, reporting whether it existed.
func (r *RedisConfigCache) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	result, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return result > 0, nil
}

// Health checks the Redis connection.
func (r *RedisConfigCache) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DefaultRedisConfig returns a RedisConfig with local-development defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr: "localhost:6379",
	}
}

// NewRedisClient creates a Redis client from the given configuration.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
