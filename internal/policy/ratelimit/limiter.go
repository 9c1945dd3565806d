// Package ratelimit implements a token bucket limiter that throttles scrape
// execution per platform. Worker quarantine handles bans after the fact;
// the limiter reduces how often we provoke them in the first place.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages per-platform rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	// DefaultRPS is the steady-state scrapes per second per platform.
	// Zero or negative means unlimited.
	DefaultRPS float64
	// DefaultBurst is the bucket size per platform (min 1).
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the platform, respecting the
// context.
func (l *Limiter) Wait(ctx context.Context, platform string) error {
	l.mu.Lock()
	limiter, exists := l.limiters[platform]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[platform] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", platform, err)
	}
	return nil
}

// None is a permissive limiter for setups without throttling.
type None struct{}

// Wait for None returns immediately.
func (None) Wait(context.Context, string) error {
	return nil
}
