// Package ratelimit gates how many new alerts may be surfaced per window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most max events per window. The window starts at the
// first attempt after the previous one expired; rejected attempts are
// dropped, never deferred into a later window.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time

	start  time.Time
	count  int
	resets int
}

// State is a point-in-time copy of the limiter.
type State struct {
	WindowStart time.Time
	Admitted    int
	Max         int
	Window      time.Duration
	Resets      int
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter for max events per window. max below 1 admits
// nothing.
func New(max int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{max: max, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether one more event is admitted, counting it if so.
// A window covers the half-open interval [start, start+window): a call at
// exactly start+window opens a new window starting at that instant. The
// window check, reset and increment happen under one lock.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.start.IsZero() || !now.Before(l.start.Add(l.window)) {
		if !l.start.IsZero() {
			l.resets++
		}
		l.start = now
		l.count = 0
	}
	if l.count >= l.max {
		return false
	}
	l.count++
	return true
}

func (l *Limiter) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return State{
		WindowStart: l.start,
		Admitted:    l.count,
		Max:         l.max,
		Window:      l.window,
		Resets:      l.resets,
	}
}
