package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// window is one fixed window for a key.
type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryCounter keeps windows in process memory. It is used when no shared
// store is configured and in tests; counts are not shared between replicas.
type MemoryCounter struct {
	// windows maps keys to their current window
	windows map[string]*window

	// mu serialises check-and-increment
	mu sync.Mutex

	// now is the clock, replaceable in tests
	now func() time.Time

	// cleanup interval for removing expired windows
	cleanupInterval time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption configures a MemoryCounter.
type MemoryOption func(*MemoryCounter)

// WithClock replaces the counter's clock.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCounter) { c.now = now }
}

// NewMemoryCounter creates an in-process counter. A positive cleanupInterval
// starts a goroutine that drops expired windows until Close is called.
func NewMemoryCounter(cleanupInterval time.Duration, opts ...MemoryOption) *MemoryCounter {
	c := &MemoryCounter{
		windows:         make(map[string]*window),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cleanupInterval > 0 {
		go c.cleanupRoutine()
	}

	return c
}

// Take implements Counter.
func (c *MemoryCounter) Take(ctx context.Context, key string, limit int, windowLen time.Duration) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &window{expiresAt: now.Add(windowLen)}
		c.windows[key] = w
	}

	ttl := w.expiresAt.Sub(now)
	if w.count >= int64(limit) {
		return Result{Count: w.count, Allowed: false, TTL: ttl}, nil
	}

	w.count++
	return Result{Count: w.count, Allowed: true, TTL: ttl}, nil
}

// Len returns the number of tracked windows, expired ones included.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

// Close stops the cleanup routine.
func (c *MemoryCounter) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

// cleanupRoutine periodically removes expired windows to prevent memory leaks.
func (c *MemoryCounter) cleanupRoutine() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup removes windows that have ended.
func (c *MemoryCounter) cleanup() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, w := range c.windows {
		if !now.Before(w.expiresAt) {
			delete(c.windows, key)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Int("remaining", len(c.windows)).Msg("Rate limit windows cleaned up")
	}
}
