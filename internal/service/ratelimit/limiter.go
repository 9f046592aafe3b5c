package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a per-key token bucket. Every key starts full with burst tokens and refills
// at rate tokens per second.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*bucket
	rate    float64
	burst   float64
	idleTTL time.Duration
	now     func() time.Time
	sweep   time.Time
}

func New(rate float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		m:       make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictIdle(now)

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.m[key] = b
	}
	// refill
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// evictIdle drops buckets untouched for idleTTL; they would be full again anyway.
// Caller holds l.mu.
func (l *Limiter) evictIdle(now time.Time) {
	if now.Sub(l.sweep) < l.idleTTL {
		return
	}
	for k, b := range l.m {
		if now.Sub(b.last) >= l.idleTTL {
			delete(l.m, k)
		}
	}
	l.sweep = now
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
