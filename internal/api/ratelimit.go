package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// rateLimiterEntry tracks request timestamps for an IP address
type rateLimiterEntry struct {
	requests []time.Time
	mu       sync.Mutex
}

// RateLimiter is a sliding-window limit per client IP
type RateLimiter struct {
	entries     sync.Map // map[string]*rateLimiterEntry
	maxRequests int
	window      time.Duration
	name        string
	now         func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(name string, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		name:        name,
		now:         time.Now,
	}
}

// allow checks if a request from the given IP is allowed
func (rl *RateLimiter) allow(ip string) bool {
	now := rl.now()

	val, _ := rl.entries.LoadOrStore(ip, &rateLimiterEntry{
		requests: make([]time.Time, 0, rl.maxRequests),
	})
	entry := val.(*rateLimiterEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	cutoff := now.Add(-rl.window)
	valid := entry.requests[:0]
	for _, req := range entry.requests {
		if req.After(cutoff) {
			valid = append(valid, req)
		}
	}
	entry.requests = valid

	if len(entry.requests) >= rl.maxRequests {
		log.Warn().
			Str("ip", ip).
			Str("limiter", rl.name).
			Int("requests", len(entry.requests)).
			Int("max", rl.maxRequests).
			Dur("window", rl.window).
			Msg("Rate limit exceeded")
		return false
	}

	entry.requests = append(entry.requests, now)
	return true
}

// Middleware returns a Gin middleware that applies rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"message":     fmt.Sprintf("Maximum %d requests per %v allowed", rl.maxRequests, rl.window),
				"retry_after": rl.window.Seconds(),
			})
			return
		}
		c.Next()
	}
}

// CleanupOldEntries drops IPs with no request in the last two windows
func (rl *RateLimiter) CleanupOldEntries() int {
	cutoff := rl.now().Add(-rl.window * 2)
	removed := 0

	rl.entries.Range(func(key, value interface{}) bool {
		entry := value.(*rateLimiterEntry)
		entry.mu.Lock()
		active := false
		for _, req := range entry.requests {
			if req.After(cutoff) {
				active = true
				break
			}
		}
		entry.mu.Unlock()

		if !active {
			rl.entries.Delete(key)
			removed++
		}
		return true
	})

	return removed
}

// RunCleanup calls CleanupOldEntries every interval until ctx ends
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := rl.CleanupOldEntries()
			log.Debug().Str("limiter", rl.name).Int("removed", removed).Msg("Rate limiter cleanup completed")
		}
	}
}

// intentMiddleware limits mutating routes, or passes through when no
// limit is configured
func (s *Server) intentMiddleware() gin.HandlerFunc {
	if s.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return s.limiter.Middleware()
}

// Limiter returns the intent limiter, nil when disabled
func (s *Server) Limiter() *RateLimiter {
	return s.limiter
}
