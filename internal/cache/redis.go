package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// keyPrefix namespaces every Redis key written by geobeat.
const keyPrefix = "geobeat:"

// RedisCache implements the cache on Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get retrieves a value, returning nil on a miss.
func (c *RedisCache) Get(ctx context.Context, network string, key string) ([]byte, error) {
	if network == "" {
		return nil, fmt.Errorf("network is required")
	}
	val, err := c.client.Get(ctx, keyPrefix+networkKey(network, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value. A zero ttl never expires.
func (c *RedisCache) Set(ctx context.Context, network string, key string, value []byte, ttl time.Duration) error {
	if network == "" {
		return fmt.Errorf("network is required")
	}
	return c.client.Set(ctx, keyPrefix+networkKey(network, key), value, ttl).Err()
}

// Delete removes a value.
func (c *RedisCache) Delete(ctx context.Context, network string, key string) error {
	if network == "" {
		return fmt.Errorf("network is required")
	}
	return c.client.Del(ctx, keyPrefix+networkKey(network, key)).Err()
}

// GetScore retrieves a cached composite score.
func (c *RedisCache) GetScore(ctx context.Context, network string, key string) (*domain.CompositeScore, error) {
	return getScore(ctx, c, network, key)
}

// SetScore caches a composite score.
func (c *RedisCache) SetScore(ctx context.Context, network string, key string, score *domain.CompositeScore, ttl time.Duration) error {
	return setScore(ctx, c, network, key, score, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
