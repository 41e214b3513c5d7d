package proctor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCountdownExpiresExactlyOnce(t *testing.T) {
	c := newCountdown(30*time.Millisecond, 10*time.Millisecond)

	var fired atomic.Int32
	c.Start(func() { fired.Add(1) })

	time.Sleep(150 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly one expiry, got %d", got)
	}
	if c.Remaining() != 0 {
		t.Fatalf("expected zero remaining, got %v", c.Remaining())
	}
}

func TestCountdownStopPreventsExpiry(t *testing.T) {
	c := newCountdown(50*time.Millisecond, 10*time.Millisecond)

	var fired atomic.Int32
	c.Start(func() { fired.Add(1) })

	c.Stop()
	time.Sleep(150 * time.Millisecond)

	if got := fired.Load(); got != 0 {
		t.Fatalf("expected no expiry after Stop, got %d", got)
	}
}

func TestCountdownStopIdempotent(t *testing.T) {
	c := newCountdown(time.Second, 10*time.Millisecond)
	c.Start(func() {})

	// Must not panic or block however many times it is called.
	c.Stop()
	c.Stop()
	c.Stop()
}

func TestCountdownRemainingDecreases(t *testing.T) {
	c := newCountdown(5*time.Second, 10*time.Millisecond)
	c.Start(func() {})
	defer c.Stop()

	time.Sleep(35 * time.Millisecond)

	if got := c.Remaining(); got >= 5*time.Second {
		t.Fatalf("expected remaining below initial duration, got %v", got)
	}
}

func TestCountdownStartIsOneShot(t *testing.T) {
	c := newCountdown(20*time.Millisecond, 10*time.Millisecond)

	var fired atomic.Int32
	c.Start(func() { fired.Add(1) })
	c.Start(func() { fired.Add(100) }) // second Start must be ignored

	time.Sleep(100 * time.Millisecond)

	if got := fired.Load(); got != 1 {
		t.Fatalf("expected single expiry from first Start, got %d", got)
	}
}
