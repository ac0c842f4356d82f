package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMetrics wraps a Redis client and instruments operations
type RedisMetrics struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisMetrics creates a new instrumented Redis client
func NewRedisMetrics(client *redis.Client) *RedisMetrics {
	return &RedisMetrics{client: client}
}

// Get performs a Redis GET and records metrics. A missing key counts as a
// cache miss and returns redis.Nil.
func (rm *RedisMetrics) Get(ctx context.Context, key string) (string, error) {
	RecordRedisOperation("get")

	val, err := rm.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		rm.misses.Add(1)
		rm.updateHitRate()
		return "", err
	} else if err != nil {
		return "", err
	}

	rm.hits.Add(1)
	rm.updateHitRate()
	return val, nil
}

// Set performs a Redis SET and records metrics
func (rm *RedisMetrics) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	RecordRedisOperation("set")
	return rm.client.Set(ctx, key, value, expiration).Err()
}

// Del performs a Redis DEL and records metrics
func (rm *RedisMetrics) Del(ctx context.Context, keys ...string) error {
	RecordRedisOperation("del")
	return rm.client.Del(ctx, keys...).Err()
}

// Ping checks the connection
func (rm *RedisMetrics) Ping(ctx context.Context) error {
	RecordRedisOperation("ping")
	return rm.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client
func (rm *RedisMetrics) Client() *redis.Client {
	return rm.client
}

// HitRate returns the observed hit ratio
func (rm *RedisMetrics) HitRate() float64 {
	hits, misses := rm.hits.Load(), rm.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (rm *RedisMetrics) updateHitRate() {
	RedisCacheHitRate.Set(rm.HitRate())
}

