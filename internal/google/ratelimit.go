package google

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default per-service admission rate. Google per-user quotas sit around
// 60 requests per minute for most Workspace APIs.
const (
	defaultRequestsPerSecond = 5
	defaultBurst             = 10
)

// RateLimiter throttles outbound calls for one service and additionally
// holds admissions back after a 429, honoring the server's Retry-After.
type RateLimiter struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	retryAt time.Time
	now     func() time.Time
}

// NewRateLimiter builds a limiter at the given rate; zero values use the
// defaults.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
	}
}

// Wait blocks until an admission is available, respecting any rate-limit
// hold. Returns the context error if it expires first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	hold := r.retryAt
	r.mu.Unlock()

	if wait := hold.Sub(r.now()); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return r.limiter.Wait(ctx)
}

// Backoff pushes the next admission out, typically after a 429 carrying
// a Retry-After hint.
func (r *RateLimiter) Backoff(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	until := r.now().Add(d)
	if until.After(r.retryAt) {
		r.retryAt = until
	}
}
