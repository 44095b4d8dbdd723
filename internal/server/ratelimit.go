package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per principal.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per principal with the given
// burst. It returns nil when perSecond is not positive, and a nil
// RateLimiter allows everything.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		ttl:      15 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
		if len(rl.limiters)%256 == 0 {
			rl.evictLocked(now)
		}
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// evictLocked drops buckets idle for longer than the ttl.
func (rl *RateLimiter) evictLocked(now time.Time) {
	for k, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.ttl {
			delete(rl.limiters, k)
		}
	}
}
