package analytics

import (
	"sync"
	"time"
)

// RateLimiter is sliding-window admission control over fetch initiations.
// Admission is global across the analytics subsystem, not per key: the
// window protects the backend, not an individual widget.
//
// Rejection is a normal outcome, not an error: the orchestrator surfaces it
// as a retry-after state.
type RateLimiter struct {
	mu         sync.Mutex
	window     time.Duration
	maxAdmits  int
	admissions []time.Time
	nowFn      func() time.Time
}

// NewRateLimiter creates a limiter admitting at most maxAdmits initiations
// per window.
func NewRateLimiter(maxAdmits int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:     window,
		maxAdmits:  maxAdmits,
		admissions: make([]time.Time, 0, maxAdmits),
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// TryAdmit records and admits one attempt if the window has a free slot.
// The count invariant is enforced at admission time, never retroactively.
func (l *RateLimiter) TryAdmit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	l.purge(now)
	if len(l.admissions) >= l.maxAdmits {
		return false
	}
	l.admissions = append(l.admissions, now)
	return true
}

// Remaining returns the number of free slots. Pure read, no side effects on
// admission state beyond the lazy purge of aged-out timestamps.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.purge(l.nowFn())
	return l.maxAdmits - len(l.admissions)
}

// UntilNextSlot returns how long until one admission slot frees up.
// Zero means a slot is free now.
func (l *RateLimiter) UntilNextSlot() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	l.purge(now)
	if len(l.admissions) < l.maxAdmits {
		return 0
	}
	// Oldest admission ages out first; admissions is kept in order.
	return l.admissions[0].Add(l.window).Sub(now)
}

// purge drops timestamps older than the window. Caller holds the lock.
func (l *RateLimiter) purge(now time.Time) {
	cutoff := now.Add(-l.window)
	drop := 0
	for _, t := range l.admissions {
		if t.After(cutoff) {
			break
		}
		drop++
	}
	if drop > 0 {
		l.admissions = append(l.admissions[:0], l.admissions[drop:]...)
	}
}
