// Package ratelimit provides per-peer message rate limiting.
package ratelimit

import (
	"sync"
	"time"
)

// Default rate limit values.
const (
	// DefaultRate is the sustained message rate allowed per peer,
	// in messages per second.
	DefaultRate = 100

	// DefaultBurst is the maximum number of messages a peer may send
	// in a single burst before the sustained rate applies.
	DefaultBurst = 100
)

// bucket tracks the token balance for a single peer.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// Limiter implements a token bucket rate limiter keyed by peer.
// Each peer gets its own bucket that refills at a fixed rate.
// Messages that arrive with no tokens available are rejected.
// All methods are safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	rate    float64
	burst   float64
	buckets map[string]*bucket
	closed  bool

	// now is the clock used for refill accounting. Tests replace it.
	now func() time.Time

	// Metrics callback (optional)
	onRejected func(key string)
}

// NewLimiter creates a new rate limiter.
// If rate <= 0, DefaultRate is used.
// If burst <= 0, burst is set to the rate.
func NewLimiter(rate, burst int) *Limiter {
	if rate <= 0 {
		rate = DefaultRate
	}
	if burst <= 0 {
		burst = rate
	}

	return &Limiter{
		rate:    float64(rate),
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// SetRejectedCallback sets a callback that is called when a message
// is rejected for exceeding the rate limit. This is useful for metrics.
func (rl *Limiter) SetRejectedCallback(fn func(key string)) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.onRejected = fn
}

// SetClock replaces the limiter's clock. Tests use this to control
// refill timing deterministically.
func (rl *Limiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Allow reports whether a message from the given key may proceed.
// It consumes one token from the key's bucket on success.
// A closed limiter allows everything.
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()

	if rl.closed {
		rl.mu.Unlock()
		return true
	}

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, lastFill: now}
		rl.buckets[key] = b
	}

	// Refill based on elapsed time, capped at the burst size.
	if elapsed := now.Sub(b.lastFill); elapsed > 0 {
		b.tokens += elapsed.Seconds() * rl.rate
		if b.tokens > rl.burst {
			b.tokens = rl.burst
		}
	}
	b.lastFill = now

	if b.tokens >= 1 {
		b.tokens--
		rl.mu.Unlock()
		return true
	}

	fn := rl.onRejected
	rl.mu.Unlock()

	if fn != nil {
		fn(key)
	}
	return false
}

// Forget removes the bucket for the given key, if any.
// The next message from the key starts with a full bucket.
func (rl *Limiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Prune removes buckets that have been idle for at least maxIdle and
// returns the number removed. Callers run this periodically to keep
// the bucket map from growing with departed peers.
func (rl *Limiter) Prune(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, b := range rl.buckets {
		if now.Sub(b.lastFill) >= maxIdle {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked buckets.
func (rl *Limiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Close disables the limiter. Subsequent Allow calls succeed
// unconditionally. Close is idempotent.
func (rl *Limiter) Close() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.closed {
		return
	}
	rl.closed = true
	rl.buckets = nil
}
