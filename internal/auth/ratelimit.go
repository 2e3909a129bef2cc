package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimitConfig configures rate limiting behavior
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requestsPerMinute" json:"requestsPerMinute"`
	Burst             int  `mapstructure:"burst" json:"burst"`
	CleanupInterval   int  `mapstructure:"cleanupInterval" json:"cleanupInterval"` // Seconds between cleanup runs
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 30,
		Burst:             10,
		CleanupInterval:   300, // Clean up every 5 minutes
	}
}

// RateLimiter implements token bucket rate limiting keyed by client
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*tokenBucket
	mu      sync.Mutex
	logger  *slog.Logger
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 30
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 300
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*tokenBucket),
		logger:  logger,
		now:     time.Now,
	}
}

// Allow checks if a request is allowed and consumes a token
// Returns: allowed (bool), retryAfter (seconds until next token available)
func (r *RateLimiter) Allow(key string) (bool, int) {
	if !r.config.Enabled {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	bucket, exists := r.buckets[key]
	if !exists {
		bucket = &tokenBucket{
			tokens:     float64(r.config.Burst),
			lastRefill: now,
		}
		r.buckets[key] = bucket
	}

	// Refill tokens based on elapsed time
	perSecond := float64(r.config.RequestsPerMinute) / 60.0
	bucket.tokens += now.Sub(bucket.lastRefill).Seconds() * perSecond
	bucket.lastRefill = now

	// Cap at burst size
	if bucket.tokens > float64(r.config.Burst) {
		bucket.tokens = float64(r.config.Burst)
	}

	if bucket.tokens >= 1.0 {
		bucket.tokens -= 1.0
		return true, 0
	}

	// Calculate retry-after (time until we have 1 token)
	secondsUntilToken := (1.0 - bucket.tokens) / perSecond
	return false, int(secondsUntilToken) + 1
}

// Reset forgets the bucket of a key
func (r *RateLimiter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.buckets, key)
}

// StartCleanup starts a background goroutine to clean up stale buckets
func (r *RateLimiter) StartCleanup(ctx context.Context) {
	if !r.config.Enabled {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Duration(r.config.CleanupInterval) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup()
			}
		}
	}()
}

// cleanup removes buckets that haven't been used recently
func (r *RateLimiter) cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Remove buckets unused for more than 10 minutes
	cutoff := r.now().Add(-10 * time.Minute)
	removed := 0

	for key, bucket := range r.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(r.buckets, key)
			removed++
		}
	}

	if removed > 0 && r.logger != nil {
		r.logger.Debug("Rate limit cleanup",
			"removed_buckets", removed,
			"remaining", len(r.buckets),
		)
	}
}

// Stats returns rate limiter statistics
func (r *RateLimiter) Stats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]interface{}{
		"enabled":             r.config.Enabled,
		"requests_per_minute": r.config.RequestsPerMinute,
		"burst":               r.config.Burst,
		"active_keys":         len(r.buckets),
	}
}
