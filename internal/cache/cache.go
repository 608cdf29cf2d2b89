// Package cache stores recent fare predictions so repeated lookups for the
// same flight skip inference. Entries are recomputable and TTL-bound.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aldikf/airfare-price-service/internal/models"
)

// Backend names accepted by New.
const (
	BackendNone      = "none"
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Cache stores predictions by key.
// Get returns (value, true, nil) on hit and (zero, false, nil) on miss.
type Cache interface {
	Get(ctx context.Context, key string) (models.PricePrediction, bool, error)
	Set(ctx context.Context, key string, value models.PricePrediction, ttl time.Duration) error
	// Name is the backend name used as a metric label.
	Name() string
}

// Pinger is implemented by backends that can report reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures New.
type Options struct {
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisTimeout          time.Duration

	// Breaker, when non-nil, guards calls to a remote backend.
	Breaker Breaker
	// MaxEntries bounds the in-memory backend; 0 uses DefaultMaxEntries.
	MaxEntries int
}

// New returns the backend named by backend, or nil for BackendNone.
func New(backend string, opts Options) (Cache, error) {
	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendInMemory:
		return NewInMemoryCache(opts.MaxEntries), nil
	case BackendMemcached:
		return NewMemcachedCache(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns, opts.Breaker), nil
	case BackendRedis:
		return NewRedisCache(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisTimeout, opts.Breaker), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// IsRemote reports whether backend talks to another process and so benefits
// from a circuit breaker.
func IsRemote(backend string) bool {
	return backend == BackendMemcached || backend == BackendRedis
}

// guarded runs fn through b, or directly when b is nil.
func guarded(ctx context.Context, b Breaker, fn func() error) error {
	if b == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn()
	}
	return b.Do(ctx, fn)
}

// DefaultMaxEntries bounds the in-memory cache when no size is configured.
const DefaultMaxEntries = 10000

// InMemoryCache is a mutex-guarded map with TTL expiry. Expired entries are
// dropped on access; when full, Set sweeps expired entries and then evicts
// the entry closest to expiry.
type InMemoryCache struct {
	mu         sync.Mutex
	data       map[string]cacheEntry
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	value     models.PricePrediction
	expiresAt time.Time
}

// NewInMemoryCache returns an empty cache holding at most maxEntries items.
func NewInMemoryCache(maxEntries int) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &InMemoryCache{
		data:       make(map[string]cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Name implements Cache.
func (c *InMemoryCache) Name() string { return BackendInMemory }

// Get implements Cache.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.PricePrediction, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.PricePrediction{}, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.data, key)
		return models.PricePrediction{}, false, nil
	}
	return entry.value, true, nil
}

// Set implements Cache. A non-positive ttl is ignored.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.PricePrediction, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.data[key] = cacheEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// evictLocked frees at least one slot. Caller holds mu.
func (c *InMemoryCache) evictLocked(now time.Time) {
	var victim string
	var soonest time.Time
	for k, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, k)
			continue
		}
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	if len(c.data) >= c.maxEntries && victim != "" {
		delete(c.data, victim)
	}
}
