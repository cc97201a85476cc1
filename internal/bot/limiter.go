package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// RateLimiter throttles model calls per user.
// The key is the user ID, not the channel, so users cannot bypass
// throttling by switching channels.
type RateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute sustained requests with the given burst.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now. A nil limiter allows everything.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.evictLocked(now)

	e, ok := r.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}

// evictLocked drops limiters unused for limiterIdleTTL, at most once per TTL.
func (r *RateLimiter) evictLocked(now time.Time) {
	if now.Sub(r.lastSweep) < limiterIdleTTL {
		return
	}
	r.lastSweep = now
	for key, e := range r.entries {
		if now.Sub(e.seen) > limiterIdleTTL {
			delete(r.entries, key)
		}
	}
}
