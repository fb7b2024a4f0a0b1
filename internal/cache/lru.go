// Package cache provides score caches: an in-process LRU, Redis, and a
// two-phase cache that layers the LRU in front of Redis.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// LRUCache is a thread-safe LRU cache with per-entry TTL.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value. Expired entries are dropped on read.
func (c *LRUCache) Get(ctx context.Context, network string, key string) ([]byte, error) {
	if network == "" {
		return nil, fmt.Errorf("network is required")
	}
	fullKey := networkKey(network, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fullKey]
	if !ok {
		c.misses++
		return nil, nil
	}
	entry := elem.Value.(*cacheEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.removeElement(elem)
		c.misses++
		return nil, nil
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.value, nil
}

// Set stores a value. A zero ttl never expires.
func (c *LRUCache) Set(ctx context.Context, network string, key string, value []byte, ttl time.Duration) error {
	if network == "" {
		return fmt.Errorf("network is required")
	}
	fullKey := networkKey(network, key)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fullKey]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return nil
	}

	elem := c.order.PushFront(&cacheEntry{key: fullKey, value: value, expiresAt: expiresAt})
	c.items[fullKey] = elem
	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Delete removes a value.
func (c *LRUCache) Delete(ctx context.Context, network string, key string) error {
	if network == "" {
		return fmt.Errorf("network is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[networkKey(network, key)]; ok {
		c.removeElement(elem)
	}
	return nil
}

// GetScore retrieves a cached composite score.
func (c *LRUCache) GetScore(ctx context.Context, network string, key string) (*domain.CompositeScore, error) {
	return getScore(ctx, c, network, key)
}

// SetScore caches a composite score.
func (c *LRUCache) SetScore(ctx context.Context, network string, key string, score *domain.CompositeScore, ttl time.Duration) error {
	return setScore(ctx, c, network, key, score, ttl)
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Stats reports the entry count, capacity and hit/miss counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.order.Len(), Capacity: c.maxSize, Hits: c.hits, Misses: c.misses}
}

func (c *LRUCache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}
