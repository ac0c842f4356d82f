package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradedesk/internal/metrics"
)

const priceKeyPrefix = "tradedesk:price:"

// RedisPriceCache keeps the last simulated price of every symbol in Redis.
// It is a PriceSink; other processes read it as a last-price cache.
type RedisPriceCache struct {
	redis *metrics.RedisMetrics
	ttl   time.Duration
}

// NewRedisPriceCache creates a new Redis-based price cache.
// If client is nil, returns nil (optional Redis support).
func NewRedisPriceCache(client *redis.Client, ttl time.Duration) *RedisPriceCache {
	if client == nil {
		return nil
	}

	if ttl == 0 {
		ttl = 60 * time.Second
	}

	return &RedisPriceCache{
		redis: metrics.NewRedisMetrics(client),
		ttl:   ttl,
	}
}

// Name implements PriceSink
func (c *RedisPriceCache) Name() string {
	return "redis"
}

// PublishPrices implements PriceSink; the whole snapshot is written in one
// pipeline.
func (c *RedisPriceCache) PublishPrices(ctx context.Context, prices []SymbolPrice) error {
	if c == nil {
		return fmt.Errorf("cache not initialized")
	}

	pipe := c.redis.Client().Pipeline()
	for _, p := range prices {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal price entry: %w", err)
		}
		pipe.Set(ctx, buildKey(p.Symbol), data, c.ttl)
	}

	metrics.RecordRedisOperation("pipeline_set")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache prices: %w", err)
	}

	log.Debug().
		Int("symbols", len(prices)).
		Dur("ttl", c.ttl).
		Msg("Cached prices")

	return nil
}

// Get retrieves a price from cache.
// Returns the price and true if found, or false on miss or error.
func (c *RedisPriceCache) Get(ctx context.Context, symbol string) (SymbolPrice, bool) {
	if c == nil {
		return SymbolPrice{}, false
	}

	key := buildKey(symbol)

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	cached, err := c.redis.Get(cacheCtx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().
				Err(err).
				Str("key", key).
				Msg("Redis get error - treating as cache miss")
		}
		return SymbolPrice{}, false
	}

	var entry SymbolPrice
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("Failed to unmarshal cached price")
		return SymbolPrice{}, false
	}

	return entry, true
}

// Load returns every cached price among symbols, in the order given
func (c *RedisPriceCache) Load(ctx context.Context, symbols []string) []SymbolPrice {
	out := make([]SymbolPrice, 0, len(symbols))
	for _, s := range symbols {
		if p, ok := c.Get(ctx, s); ok {
			out = append(out, p)
		}
	}
	return out
}

// Delete removes a price from cache
func (c *RedisPriceCache) Delete(ctx context.Context, symbol string) error {
	if c == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	if err := c.redis.Del(cacheCtx, buildKey(symbol)); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Clear removes all price cache entries
func (c *RedisPriceCache) Clear(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := c.redis.Client()
	iter := client.Scan(cacheCtx, 0, priceKeyPrefix+"*", 0).Iterator()
	count := 0

	for iter.Next(cacheCtx) {
		if err := c.redis.Del(cacheCtx, iter.Val()); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
		} else {
			count++
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan error: %w", err)
	}

	log.Info().
		Int("keys_deleted", count).
		Msg("Cleared price cache")

	return nil
}

// Health checks if the Redis connection is healthy
func (c *RedisPriceCache) Health(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("cache not initialized")
	}

	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.redis.Ping(cacheCtx); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	return nil
}

func buildKey(symbol string) string {
	return priceKeyPrefix + symbol
}
