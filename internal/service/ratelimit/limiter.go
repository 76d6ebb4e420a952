package ratelimit

import (
	"sync"
	"time"
)

// ReporterLimiter throttles submissions per reporter using a token bucket
// per key. Buckets are created lazily on first use.
type ReporterLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate  float64 // tokens per second
	burst float64

	now func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewReporterLimiter(rate float64, burst int) *ReporterLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ReporterLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow consumes one token for the reporter, returning false when the
// reporter is over its submission rate.
func (l *ReporterLimiter) Allow(reporter string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[reporter]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[reporter] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
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

// Prune drops buckets idle longer than maxIdle so the map does not grow
// unbounded with one-off reporters.
func (l *ReporterLimiter) Prune(maxIdle time.Duration) {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.last.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}
