// Package ratelimit provides fixed-window rate limiting for protecting API endpoints.
//
// A Limiter counts requests per key in windows of a fixed length. The first
// request of a window creates the counter with the window's TTL; later
// requests increment it. Once the counter has reached the limit further
// requests are rejected without being counted, so a rejected client never
// extends its own lockout. The check and the increment happen in one atomic
// step inside the Counter.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rate controls how many requests are allowed per window
type Rate struct {
	// Limit is the number of requests allowed in one window
	Limit int

	// Window is the length of the fixed window
	Window time.Duration
}

// Result is what a Counter reports for one attempt.
type Result struct {
	// Count is the counter value after the attempt. A rejected attempt
	// leaves it unchanged.
	Count int64

	// Allowed is false when the counter was already at the limit
	Allowed bool

	// TTL is the time left in the current window
	TTL time.Duration
}

// Counter is an atomic check-and-increment store for fixed windows.
type Counter interface {
	Take(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Decision is the outcome of Limiter.Allow.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter applies a Rate to keys using a Counter.
type Limiter struct {
	counter    Counter
	rate       Rate
	prefix     string
	failClosed bool
}

// NewLimiter creates a limiter for keys under prefix.
//
// Parameters:
//   - counter: The backing store
//   - rate: The limit and window
//   - prefix: Namespace for keys, e.g. "forgot-password"
//   - failClosed: Reject requests when the counter store fails
func NewLimiter(counter Counter, rate Rate, prefix string, failClosed bool) *Limiter {
	return &Limiter{
		counter:    counter,
		rate:       rate,
		prefix:     prefix,
		failClosed: failClosed,
	}
}

// Key returns the counter key for a client identity.
func (l *Limiter) Key(identity string) string {
	return fmt.Sprintf("%s:%s", l.prefix, identity)
}

// Rate returns the configured rate.
func (l *Limiter) Rate() Rate {
	return l.rate
}

// Allow records an attempt for identity. When the counter store fails the
// error is returned together with a decision that follows the fault policy:
// allowed when failing open, rejected when failing closed.
func (l *Limiter) Allow(ctx context.Context, identity string) (Decision, error) {
	res, err := l.counter.Take(ctx, l.Key(identity), l.rate.Limit, l.rate.Window)
	if err != nil {
		d := Decision{Allowed: !l.failClosed, Limit: l.rate.Limit, Remaining: l.rate.Limit}
		if l.failClosed {
			d.Remaining = 0
			d.RetryAfter = l.rate.Window
		}
		return d, fmt.Errorf("rate limit counter: %w", err)
	}

	remaining := l.rate.Limit - int(res.Count)
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   res.Allowed,
		Limit:     l.rate.Limit,
		Remaining: remaining,
	}
	if !res.Allowed {
		d.RetryAfter = res.TTL
		if d.RetryAfter <= 0 {
			d.RetryAfter = l.rate.Window
		}
	}
	return d, nil
}
