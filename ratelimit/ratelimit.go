// Package ratelimit implements a sliding-window admission gate.
//
// The limiter keeps the acceptance timestamps that fall inside a trailing
// window. Expired timestamps are purged lazily on every check; the count of
// what remains is the only admission criterion.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most limit events within any trailing window.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithNow replaces the clock used by the limiter.
func WithNow(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter. A limit <= 0 disables limiting.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if limit > 0 {
		l.stamps = make([]time.Time, 0, limit)
	}
	return l
}

// Allow records an event and returns true if capacity remains in the
// current window. A rejected event is not recorded.
func (l *Limiter) Allow() bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purge(now)
	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}

// WaitTime returns how long until the next event would be admitted.
func (l *Limiter) WaitTime() time.Duration {
	if l.limit <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purge(now)
	if len(l.stamps) < l.limit {
		return 0
	}
	wait := l.stamps[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Remaining returns the number of events still admissible in the window.
// It returns -1 when limiting is disabled.
func (l *Limiter) Remaining() int {
	if l.limit <= 0 {
		return -1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.purge(l.now())
	return l.limit - len(l.stamps)
}

// Limit returns the configured limit and window.
func (l *Limiter) Limit() (int, time.Duration) {
	return l.limit, l.window
}

// Reset forgets every recorded event.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = l.stamps[:0]
}

// purge drops timestamps at or before now-window. Caller holds mu.
func (l *Limiter) purge(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(l.stamps, l.stamps[i:])
	l.stamps = l.stamps[:n]
}
