package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// New creates a cache from configuration.
// "memory" returns an LRU cache; "redis" returns Redis, or LRU + Redis when
// two-phase caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Stats describes an in-process cache.
type Stats struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
}

// ScoreKey is the cache key of a score by ID.
func ScoreKey(scoreID string) string {
	return "score:" + scoreID
}

// byteStore is the raw key/value surface every cache shares.
type byteStore interface {
	Get(ctx context.Context, network string, key string) ([]byte, error)
	Set(ctx context.Context, network string, key string, value []byte, ttl time.Duration) error
}

func getScore(ctx context.Context, s byteStore, network, key string) (*domain.CompositeScore, error) {
	data, err := s.Get(ctx, network, key)
	if err != nil || data == nil {
		return nil, err
	}
	var score domain.CompositeScore
	if err := json.Unmarshal(data, &score); err != nil {
		return nil, fmt.Errorf("decode cached score: %w", err)
	}
	return &score, nil
}

func setScore(ctx context.Context, s byteStore, network, key string, score *domain.CompositeScore, ttl time.Duration) error {
	data, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}
	return s.Set(ctx, network, key, data, ttl)
}

func networkKey(network, key string) string {
	return network + ":" + key
}

// TwoPhaseCache reads the local LRU first and falls back to Redis.
// L1: local LRU for fast reads
// L2: Redis shared across replicas
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, time.Duration(cfg.LocalTTL)*time.Second), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get retrieves from L1 first, then L2. An L2 hit populates L1.
func (c *TwoPhaseCache) Get(ctx context.Context, network string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, network, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, network, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, network, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both levels; L1 keeps the shorter of the two TTLs.
func (c *TwoPhaseCache) Set(ctx context.Context, network string, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl > 0 && ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, network, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, network, key, value, ttl)
}

// Delete removes from both levels.
func (c *TwoPhaseCache) Delete(ctx context.Context, network string, key string) error {
	if err := c.local.Delete(ctx, network, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, network, key)
}

// GetScore retrieves a cached composite score.
func (c *TwoPhaseCache) GetScore(ctx context.Context, network string, key string) (*domain.CompositeScore, error) {
	return getScore(ctx, c, network, key)
}

// SetScore caches a composite score in both levels.
func (c *TwoPhaseCache) SetScore(ctx context.Context, network string, key string, score *domain.CompositeScore, ttl time.Duration) error {
	return setScore(ctx, c, network, key, score, ttl)
}

// Ping checks both levels.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both levels.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}
