package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/aldikf/airfare-price-service/internal/models"
)

// RedisCache stores predictions as JSON strings in redis with a native TTL.
type RedisCache struct {
	client  *redis.Client
	breaker Breaker
}

// NewRedisCache creates a RedisCache for a single redis node. A zero timeout
// keeps the client defaults. breaker may be nil.
func NewRedisCache(addr, password string, db int, timeout time.Duration, breaker Breaker) *RedisCache {
	if addr == "" {
		addr = "localhost:6379"
	}
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return &RedisCache{client: redis.NewClient(opts), breaker: breaker}
}

func redisKey(k string) string { return keyPrefix + k }

// Name implements Cache.
func (c *RedisCache) Name() string { return BackendRedis }

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (models.PricePrediction, bool, error) {
	var data []byte
	err := guarded(ctx, c.breaker, func() error {
		var err error
		data, err = c.client.Get(ctx, redisKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		return models.PricePrediction{}, false, fmt.Errorf("redis get: %w", err)
	}
	if data == nil {
		return models.PricePrediction{}, false, nil
	}
	var p models.PricePrediction
	if err := json.Unmarshal(data, &p); err != nil {
		return models.PricePrediction{}, false, fmt.Errorf("redis decode: %w", err)
	}
	return p, true, nil
}

// Set implements Cache. A non-positive ttl is ignored so nothing is stored
// without expiry.
func (c *RedisCache) Set(ctx context.Context, key string, value models.PricePrediction, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	value.Cached = false
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis encode: %w", err)
	}
	err = guarded(ctx, c.breaker, func() error {
		return c.client.Set(ctx, redisKey(key), raw, ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping implements Pinger.
func (c *RedisCache) Ping(ctx context.Context) error {
	return guarded(ctx, c.breaker, func() error {
		return c.client.Ping(ctx).Err()
	})
}

// Close releases the connection pool. Call during shutdown.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
