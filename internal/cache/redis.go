// Package cache holds the Redis-backed collaborators of the service: a
// short-lived JSON cache in front of the statistics views and a SETNX lock
// used to deduplicate stream deliveries.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/metrics"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Remember returns the cached value for key, computing and storing it on a
// miss. A nil cache or a non-positive ttl always computes. Cache errors are
// logged and never fail the call; compute errors are never cached.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return compute(ctx)
	}

	var cached T
	err := c.Get(ctx, key, &cached)
	switch {
	case err == nil:
		metrics.StatsCacheHitsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	case errors.Is(err, ErrMiss):
		metrics.StatsCacheHitsTotal.WithLabelValues("miss").Inc()
	default:
		metrics.StatsCacheHitsTotal.WithLabelValues("error").Inc()
		telemetry.Logger.Warn("Stats cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		telemetry.Logger.Warn("Stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}
