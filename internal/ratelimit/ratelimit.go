// Package ratelimit implements a per-identity sliding-window request counter.
//
// Unlike a token bucket, the window is exact per identity: each accepted
// request's timestamp is stored, and a request is rejected only when the
// identity already has MaxRequests timestamps newer than now-Window. A
// periodic full sweep bounds the memory of the identity map; it is an
// optimization, not a correctness requirement.
package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxRequests   = 30
	DefaultWindow        = 60 * time.Second
	DefaultSweepInterval = 10 * time.Second
)

type Limiter struct {
	mu        sync.Mutex
	windows   map[string][]time.Time
	lastSweep time.Time

	max           int
	window        time.Duration
	sweepInterval time.Duration
	now           func() time.Time
}

type Option func(*Limiter)

// WithClock replaces the wall clock, letting tests drive simulated time.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

func New(max int, window, sweepInterval time.Duration, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	l := &Limiter{
		windows:       make(map[string][]time.Time),
		max:           max,
		window:        window,
		sweepInterval: sweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Limited reports whether the identity has exhausted its window. When the
// identity still has budget the current request is recorded; when it is
// limited nothing is recorded, so a steady flood does not extend the block.
func (l *Limiter) Limited(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.window)

	if now.Sub(l.lastSweep) > l.sweepInterval {
		l.sweepLocked(windowStart)
		l.lastSweep = now
	}

	live := trimOlder(l.windows[identity], windowStart)
	if len(live) >= l.max {
		l.windows[identity] = live
		return true
	}
	l.windows[identity] = append(live, now)
	return false
}

// Tracked returns the number of identities currently held, for diagnostics.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) sweepLocked(windowStart time.Time) {
	for identity, stamps := range l.windows {
		live := trimOlder(stamps, windowStart)
		if len(live) == 0 {
			delete(l.windows, identity)
			continue
		}
		l.windows[identity] = live
	}
}

func trimOlder(stamps []time.Time, windowStart time.Time) []time.Time {
	if len(stamps) == 0 {
		return nil
	}
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(windowStart) {
			live = append(live, ts)
		}
	}
	return live
}
