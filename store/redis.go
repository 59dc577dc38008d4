package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the go-redis client used by RedisCache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisCache implements BearingCache using Redis.
// It leverages Redis's native TTL for automatic expiration.
type RedisCache struct {
	client RedisClient
	prefix string
}

// NewRedisCache creates a new Redis bearing cache from a Redis client and a key prefix.
// prefix typically ends with a colon.
func NewRedisCache(client RedisClient, keyPrefix string) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: keyPrefix,
	}
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all keys (default: "qibla:bearing:")
	KeyPrefix string
}

// NewRedisFromConfig connects to Redis and returns a bearing cache.
func NewRedisFromConfig(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "qibla:bearing:"
	}

	return NewRedisCache(client, prefix), nil
}

// Get returns the cached bearing for key.
func (c *RedisCache) Get(key string) (float64, bool, error) {
	ctx := context.Background()

	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis: failed to get key: %w", err)
	}

	bearing, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: corrupt bearing %q: %w", raw, err)
	}
	return bearing, true, nil
}

// Set stores a bearing with the given TTL.
func (c *RedisCache) Set(key string, bearing float64, ttl time.Duration) error {
	ctx := context.Background()

	value := strconv.FormatFloat(bearing, 'g', -1, 64)
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set key: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
