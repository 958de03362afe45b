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

func TestLimiter_WindowRejectsAndRecovers(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(2, time.Second, WithNow(clock.Now))

	if !l.Allow() || !l.Allow() {
		t.Fatal("first two events should be admitted")
	}
	if l.Allow() {
		t.Fatal("third event within the window should be rejected")
	}
	if got := l.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}

	if wait := l.WaitTime(); wait != time.Second {
		t.Errorf("WaitTime() = %v, want 1s", wait)
	}

	clock.Advance(1100 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("event after the window should be admitted")
	}
	if got := l.Remaining(); got != 1 {
		t.Errorf("Remaining() = %d, want 1", got)
	}
}

func TestLimiter_SlidingNotFixed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(2, time.Second, WithNow(clock.Now))

	l.Allow()
	clock.Advance(600 * time.Millisecond)
	l.Allow()
	clock.Advance(500 * time.Millisecond)

	// The first event has expired, the second has not.
	if !l.Allow() {
		t.Fatal("expected one slot to free up")
	}
	if l.Allow() {
		t.Fatal("expected the window to be full again")
	}
	if wait := l.WaitTime(); wait != 500*time.Millisecond {
		t.Errorf("WaitTime() = %v, want 500ms", wait)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, time.Second)
	for i := 0; i < 1000; i++ {
		if !l.Allow() {
			t.Fatal("disabled limiter rejected an event")
		}
	}
	if l.Remaining() != -1 {
		t.Errorf("Remaining() = %d, want -1", l.Remaining())
	}
	if l.WaitTime() != 0 {
		t.Errorf("WaitTime() = %v, want 0", l.WaitTime())
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(10, time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Errorf("admitted = %d, want 10", got)
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := New(1, time.Hour)
	l.Allow()
	if l.Allow() {
		t.Fatal("expected rejection")
	}
	l.Reset()
	if !l.Allow() {
		t.Fatal("expected admission after Reset")
	}
	if n, w := l.Limit(); n != 1 || w != time.Hour {
		t.Errorf("Limit() = %d, %v", n, w)
	}
}
