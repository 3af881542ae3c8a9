package circuitbreaker

import (
	"sync"
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

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(Config{Threshold: threshold, Cooldown: time.Minute, Now: clock.Now}), clock
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	b := New(Config{})

	for i := 0; i < 4; i++ {
		b.Failure()
	}
	if b.State() != Closed {
		t.Fatal("expected closed after 4 failures (default threshold is 5)")
	}
	b.Failure()
	if b.State() != Open {
		t.Fatal("expected open after 5 failures")
	}
}

func TestBreaker_OpensAndRejects(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(2)

	b.Failure()
	if !b.Allow() {
		t.Fatal("expected allow below threshold")
	}
	b.Failure()
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected open breaker to reject")
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(1)

	b.Failure()
	clock.Advance(2 * time.Minute)

	if !b.Allow() {
		t.Fatal("expected probe after cooldown")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected only one probe while half-open")
	}

	b.Success()
	if b.State() != Closed || !b.Allow() {
		t.Fatal("expected closed after probe success")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()
	b, clock := newTestBreaker(3)

	b.Failure()
	b.Failure()
	b.Failure()
	clock.Advance(2 * time.Minute)
	b.Allow()

	b.Failure()
	if b.State() != Open {
		t.Fatalf("expected open after failed probe, got %s", b.State())
	}
	if b.Allow() {
		t.Fatal("expected rejection right after re-opening")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestRegistry_GetAndOpen(t *testing.T) {
	t.Parallel()
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Minute})

	a := r.Get("hooks.example.com")
	if r.Get("hooks.example.com") != a {
		t.Fatal("expected same breaker for same key")
	}
	r.Get("other.example.com")

	a.Failure()
	if got := r.Open(); got != 1 {
		t.Fatalf("Open() = %d, want 1", got)
	}
}
