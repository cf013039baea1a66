package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client limit on training requests.
type RateLimitConfig struct {
	Enabled   bool `json:"enabled" mapstructure:"enabled"`
	PerMinute int  `json:"perMinute" mapstructure:"perMinute"`
	Burst     int  `json:"burst" mapstructure:"burst"`
}

// DefaultRateLimitConfig returns a disabled limiter of 6 per minute, burst 2.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:   false,
		PerMinute: 6,
		Burst:     2,
	}
}

// RateLimiter implements token bucket rate limiting keyed by client.
type RateLimiter struct {
	config  RateLimitConfig
	buckets map[string]*tokenBucket
	mu      sync.Mutex
	logger  *slog.Logger
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if config.PerMinute <= 0 {
		config.PerMinute = 6
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*tokenBucket),
		logger:  logger,
	}
}

// Enabled reports whether the limiter rejects anything.
func (r *RateLimiter) Enabled() bool {
	return r != nil && r.config.Enabled
}

// Allow consumes a token for key. When denied it returns the number of
// seconds until the next token is available.
func (r *RateLimiter) Allow(key string) (bool, int) {
	if !r.Enabled() {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	bucket, exists := r.buckets[key]
	if !exists {
		bucket = &tokenBucket{tokens: float64(r.config.Burst), lastRefill: now}
		r.buckets[key] = bucket
	}

	rate := float64(r.config.PerMinute) / 60.0
	bucket.tokens += now.Sub(bucket.lastRefill).Seconds() * rate
	bucket.lastRefill = now
	if bucket.tokens > float64(r.config.Burst) {
		bucket.tokens = float64(r.config.Burst)
	}

	if bucket.tokens >= 1.0 {
		bucket.tokens -= 1.0
		return true, 0
	}

	retryAfter := int((1.0-bucket.tokens)/rate) + 1
	return false, retryAfter
}

// StartCleanup drops idle buckets every interval until ctx ends.
func (r *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if !r.Enabled() {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.cleanup(time.Now().Add(-10 * time.Minute))
			}
		}
	}()
}

func (r *RateLimiter) cleanup(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

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
	return removed
}
