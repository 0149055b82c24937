// Package ratelimit implements sliding-window per-key admission control
// (spec §4.2), generalized from the teacher's per-session auth-attempt
// limiter to arbitrary keys (client IP or server name).
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a CheckAndRecord call.
type Decision struct {
	Admitted       bool
	Limit          int
	Window         time.Duration
	RemainingReset time.Duration // time until the oldest counted entry falls out of the window
}

// Limiter is a thread-safe sliding-window rate limiter. A single mutex
// guards the key->bucket map; this is acceptable given the low per-call
// cost (spec §4.2 explicitly allows this over sharding).
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	buckets     map[string][]time.Time

	// now is swappable in tests to avoid real sleeps; defaults to
	// time.Now.
	now func() time.Time
}

// New constructs a Limiter admitting at most maxRequests per key within
// window. A maxRequests of zero means every call is rejected.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		buckets:     make(map[string][]time.Time),
		now:         time.Now,
	}
}

// CheckAndRecord prunes timestamps older than the window, then admits and
// records the current call if the resulting count is below the limit
// (spec §4.2's algorithm). The bucket for an unseen key is created lazily.
func (l *Limiter) CheckAndRecord(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	if l.maxRequests <= 0 {
		return Decision{Admitted: false, Limit: l.maxRequests, Window: l.window}
	}

	recent := pruneBefore(l.buckets[key], windowStart)

	if len(recent) >= l.maxRequests {
		l.buckets[key] = recent
		reset := l.window
		if len(recent) > 0 {
			reset = recent[0].Add(l.window).Sub(now)
		}
		return Decision{Admitted: false, Limit: l.maxRequests, Window: l.window, RemainingReset: reset}
	}

	recent = append(recent, now)
	l.buckets[key] = recent
	return Decision{Admitted: true, Limit: l.maxRequests, Window: l.window}
}

func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	var kept []time.Time
	for _, t := range timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// Remaining returns how many more requests key may make before hitting the
// limit, without recording a new attempt.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.window)
	count := 0
	for _, t := range l.buckets[key] {
		if t.After(windowStart) {
			count++
		}
	}
	remaining := l.maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Reset clears all recorded attempts for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Cleanup prunes stale entries across all keys, releasing memory for keys
// that have gone idle. Callers may invoke this periodically; idle keys may
// otherwise leak empty-bucket metadata until the next sweep, which spec §3
// accepts as tolerable.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	windowStart := l.now().Add(-l.window)
	for key, timestamps := range l.buckets {
		recent := pruneBefore(timestamps, windowStart)
		if len(recent) == 0 {
			delete(l.buckets, key)
		} else {
			l.buckets[key] = recent
		}
	}
}
