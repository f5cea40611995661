// Package ratelimit paces catalog requests with one token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the per-host request rate; <= 0 means unlimited.
	RPS   float64
	Burst int
	// OnDelay, when set, is told how long a request was held back.
	OnDelay func(host string, waited time.Duration)
}

// Limiter manages per-host rate limits. It is safe for concurrent use by all
// workers of a pool.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	onDelay  func(string, time.Duration)
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
		onDelay:  cfg.OnDelay,
	}
}

// Wait blocks until rawURL's host may be requested again or ctx is done.
// Unparseable URLs share one bucket.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	start := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); l.onDelay != nil && waited > time.Millisecond {
		l.onDelay(host, waited)
	}
	return nil
}

// Hosts returns how many hosts have been seen.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = b
	}
	return b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
