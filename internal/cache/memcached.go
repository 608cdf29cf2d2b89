package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/aldikf/airfare-price-service/internal/models"
)

const keyPrefix = "fare:"

// maxRelativeExp is the longest expiration memcached treats as relative seconds.
const maxRelativeExp = 30 * 24 * 60 * 60

// Breaker guards calls to a remote dependency. *circuitbreaker.Breaker satisfies it.
type Breaker interface {
	Do(ctx context.Context, fn func() error) error
}

// MemcachedCache stores predictions as JSON in memcached.
type MemcachedCache struct {
	client  *memcache.Client
	breaker Breaker
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). Zero timeout and
// maxIdleConns keep the client defaults. breaker may be nil.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, breaker Breaker) *MemcachedCache {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, breaker: breaker}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcachedKey prefixes k and replaces bytes memcached rejects in keys.
func memcachedKey(k string) string {
	k = keyPrefix + k
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7f {
			return '_'
		}
		return r
	}, k)
}

// expirationSeconds converts ttl to a memcached relative expiration.
func expirationSeconds(ttl time.Duration) int32 {
	sec := int64(ttl / time.Second)
	if sec <= 0 {
		return 1
	}
	if sec > maxRelativeExp {
		return maxRelativeExp
	}
	return int32(sec)
}

func (c *MemcachedCache) guard(ctx context.Context, fn func() error) error {
	return guarded(ctx, c.breaker, fn)
}

// Name implements Cache.
func (c *MemcachedCache) Name() string { return BackendMemcached }

// Get implements Cache.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.PricePrediction, bool, error) {
	var item *memcache.Item
	err := c.guard(ctx, func() error {
		var err error
		item, err = c.client.Get(memcachedKey(key))
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil
		}
		return err
	})
	if err != nil {
		return models.PricePrediction{}, false, fmt.Errorf("memcached get: %w", err)
	}
	if item == nil {
		return models.PricePrediction{}, false, nil
	}
	var p models.PricePrediction
	if err := json.Unmarshal(item.Value, &p); err != nil {
		return models.PricePrediction{}, false, fmt.Errorf("memcached decode: %w", err)
	}
	return p, true, nil
}

// Set implements Cache.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.PricePrediction, ttl time.Duration) error {
	value.Cached = false
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("memcached encode: %w", err)
	}
	err = c.guard(ctx, func() error {
		return c.client.Set(&memcache.Item{
			Key:        memcachedKey(key),
			Value:      raw,
			Expiration: expirationSeconds(ttl),
		})
	})
	if err != nil {
		return fmt.Errorf("memcached set: %w", err)
	}
	return nil
}

// Ping implements Pinger.
func (c *MemcachedCache) Ping(ctx context.Context) error {
	return c.guard(ctx, c.client.Ping)
}

// Close closes idle connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
