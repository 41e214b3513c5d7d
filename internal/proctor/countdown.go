package proctor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Countdown ticks down a fixed duration and fires its callback exactly once
// when it reaches zero. Stop cancels it at any point; once Stop has been
// called no further tick is processed, so a completed attempt can never see
// a stray late expiry.
type Countdown struct {
	tick      time.Duration
	remaining atomic.Int64 // seconds
	stop      chan struct{}
	stopOnce  sync.Once
	fireOnce  sync.Once
	started   atomic.Bool
}

// NewCountdown creates a countdown for the given duration, ticking once per
// second.
func NewCountdown(d time.Duration) *Countdown {
	return newCountdown(d, time.Second)
}

func newCountdown(d, tick time.Duration) *Countdown {
	c := &Countdown{
		tick: tick,
		stop: make(chan struct{}),
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	c.remaining.Store(secs)
	return c
}

// Start begins ticking. onExpire runs at most once, from the countdown's own
// goroutine. Start is a no-op after the first call.
func (c *Countdown) Start(onExpire func()) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}

	go func() {
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				if c.remaining.Add(-1) > 0 {
					continue
				}
				// Expiry and Stop can race; fireOnce plus the
				// coordinator's claim make the race harmless.
				select {
				case <-c.stop:
				default:
					c.fireOnce.Do(onExpire)
				}
				return
			}
		}
	}()
}

// Remaining returns the seconds left, floored at zero.
func (c *Countdown) Remaining() time.Duration {
	secs := c.remaining.Load()
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second
}

// Stop cancels the countdown. Idempotent and safe to call from any
// goroutine, including the expiry callback itself.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}
