package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestAllow_SevenAttemptsWithinWindow(t *testing.T) {
	clock := newClock()
	l := New(5, 5*time.Second, WithClock(clock.Now))

	admitted, rejected := 0, 0
	for i := 0; i < 7; i++ {
		if l.Allow() {
			admitted++
		} else {
			rejected++
		}
		clock.Advance(500 * time.Millisecond)
	}
	if admitted != 5 || rejected != 2 {
		t.Errorf("admitted/rejected = %d/%d, want 5/2", admitted, rejected)
	}
}

func TestAllow_WindowBoundaryResetsOnce(t *testing.T) {
	clock := newClock()
	l := New(2, 5*time.Second, WithClock(clock.Now))

	l.Allow()
	l.Allow()
	if l.Allow() {
		t.Fatal("third attempt in window should be rejected")
	}

	clock.Advance(5 * time.Second)
	if !l.Allow() {
		t.Fatal("attempt at window end should open a new window")
	}
	if !l.Allow() {
		t.Fatal("second attempt in new window should be admitted")
	}
	if l.Allow() {
		t.Fatal("third attempt in new window should be rejected")
	}

	s := l.Snapshot()
	if s.Resets != 1 {
		t.Errorf("resets = %d, want 1", s.Resets)
	}
	if s.Admitted != 2 {
		t.Errorf("admitted = %d, want 2", s.Admitted)
	}
	if !s.WindowStart.Equal(clock.Now()) {
		t.Errorf("window start = %v, want %v", s.WindowStart, clock.Now())
	}
}

func TestAllow_WindowIsHalfOpen(t *testing.T) {
	clock := newClock()
	l := New(1, 5*time.Second, WithClock(clock.Now))
	start := clock.Now()

	if !l.Allow() {
		t.Fatal("first attempt should be admitted")
	}
	clock.Advance(5*time.Second - time.Nanosecond)
	if l.Allow() {
		t.Fatal("attempt just before the window end belongs to the full window")
	}
	clock.Advance(time.Nanosecond)
	if !l.Allow() {
		t.Fatal("attempt at exactly start+window should open a new window")
	}
	if got, want := l.Snapshot().WindowStart, start.Add(5*time.Second); !got.Equal(want) {
		t.Errorf("window start = %v, want %v", got, want)
	}
}

func TestAllow_RejectionsDoNotCarryOver(t *testing.T) {
	clock := newClock()
	l := New(1, time.Second, WithClock(clock.Now))
	l.Allow()
	for i := 0; i < 10; i++ {
		l.Allow()
	}
	clock.Advance(2 * time.Second)
	if !l.Allow() {
		t.Error("a fresh window must admit regardless of earlier rejections")
	}
	if got := l.Snapshot().Admitted; got != 1 {
		t.Errorf("admitted = %d, want 1", got)
	}
}

func TestAllow_ConcurrentNeverOvershoots(t *testing.T) {
	clock := newClock()
	l := New(10, time.Minute, WithClock(clock.Now))

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if l.Allow() {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Errorf("admitted = %d, want exactly 10", got)
	}
}

func TestAllow_ZeroMaxAdmitsNothing(t *testing.T) {
	l := New(0, time.Second)
	if l.Allow() {
		t.Error("max 0 should admit nothing")
	}
}
