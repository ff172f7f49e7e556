package task

import (
	"sync"
	"time"
)

// RateLimiter is a lazily-refilled token bucket gating task execution.
// Capacity equals the refill rate, so a full bucket holds one second's
// worth of requests. TryConsume never blocks.
type RateLimiter struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter creates a token bucket allowing ratePerSecond requests
// per second. A non-positive rate is coerced to 1.
func NewRateLimiter(ratePerSecond float64) *RateLimiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}

	clock := time.Now
	return &RateLimiter{
		capacity:   ratePerSecond,
		tokens:     ratePerSecond,
		refillRate: ratePerSecond,
		lastRefill: clock(),
		now:        clock,
	}
}

// TryConsume takes one token if at least one is available, returning
// whether it succeeded.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}

	return false
}

// TimeUntilNextToken returns the minimum wait before a TryConsume could
// succeed, rounded up to the next millisecond. Zero means a token is
// available now.
func (r *RateLimiter) TimeUntilNextToken() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		return 0
	}

	missing := 1 - r.tokens
	seconds := missing / r.refillRate
	wait := time.Duration(seconds * float64(time.Second))

	// Round up so callers who sleep the returned duration find a token.
	if rem := wait % time.Millisecond; rem != 0 {
		wait += time.Millisecond - rem
	} else if wait == 0 {
		wait = time.Millisecond
	}

	return wait
}

// refill adds tokens proportional to elapsed wall-clock time since the
// last refill. Token count never exceeds capacity. Caller holds the lock.
func (r *RateLimiter) refill() {
	now := r.now()
	elapsed := now.Sub(r.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	r.tokens += elapsed * r.refillRate
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
	r.lastRefill = now
}
