package proctor

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/provex/proctor-backend/internal/model"
	"github.com/rs/zerolog"
)

func event(id string, kind model.ViolationKind, at time.Time) IntegrityEvent {
	return IntegrityEvent{ID: id, Kind: kind, At: at}
}

func TestWatchdogCountsDistinctEvents(t *testing.T) {
	var forced atomic.Int32
	w := NewWatchdog(testPolicy(), func() { forced.Add(1) }, zerolog.Nop())

	base := time.Now()
	if got := w.Observe(event("e1", model.ViolationTabHidden, base)); got != OutcomeWarned {
		t.Fatalf("first violation: expected warn, got %v", got)
	}
	w.AckWarning()
	if got := w.Observe(event("e2", model.ViolationFullscreenExit, base.Add(2*time.Second))); got != OutcomeWarned {
		t.Fatalf("second violation: expected warn, got %v", got)
	}

	if w.Count() != 2 {
		t.Fatalf("expected 2 violations, got %d", w.Count())
	}
	if forced.Load() != 0 {
		t.Fatalf("force-submit fired below the limit")
	}
}

func TestWatchdogDedupesSameLogicalEvent(t *testing.T) {
	w := NewWatchdog(testPolicy(), func() {}, zerolog.Nop())

	base := time.Now()
	// Visibility and fullscreen listeners fire together for one physical
	// event: same ID, near-simultaneous.
	w.Observe(event("e1", model.ViolationTabHidden, base))
	if got := w.Observe(event("e1", model.ViolationFullscreenExit, base)); got != OutcomeIgnored {
		t.Fatalf("duplicate event ID: expected ignored, got %v", got)
	}
	// A different ID inside the debounce window is also collapsed.
	if got := w.Observe(event("e2", model.ViolationFullscreenExit, base.Add(100*time.Microsecond))); got != OutcomeIgnored {
		t.Fatalf("debounced event: expected ignored, got %v", got)
	}

	if w.Count() != 1 {
		t.Fatalf("violation count exceeds distinct events: %d", w.Count())
	}
}

func TestWatchdogWarningGate(t *testing.T) {
	w := NewWatchdog(testPolicy(), func() {}, zerolog.Nop())

	base := time.Now()
	if got := w.Observe(event("e1", model.ViolationTabHidden, base)); got != OutcomeWarned {
		t.Fatalf("expected warn, got %v", got)
	}
	// Modal still open: the violation counts but no fresh warning shows.
	if got := w.Observe(event("e2", model.ViolationTabHidden, base.Add(2*time.Second))); got != OutcomeCounted {
		t.Fatalf("expected counted without warning, got %v", got)
	}
	if w.Count() != 2 {
		t.Fatalf("expected 2 violations, got %d", w.Count())
	}
}

func TestWatchdogForcesAtLimitExactlyOnce(t *testing.T) {
	var forced atomic.Int32
	w := NewWatchdog(testPolicy(), func() { forced.Add(1) }, zerolog.Nop())

	base := time.Now()
	for i := 0; i < 5; i++ {
		w.Observe(event(fmt.Sprintf("e%d", i), model.ViolationTabHidden, base.Add(time.Duration(i)*time.Second)))
	}

	if forced.Load() != 1 {
		t.Fatalf("expected force-submit exactly once, got %d", forced.Load())
	}
	// Post-force observations are moot and must not raise the count.
	if w.Count() != 3 {
		t.Fatalf("expected count frozen at the limit, got %d", w.Count())
	}
}

func TestWatchdogIgnoresAfterStop(t *testing.T) {
	w := NewWatchdog(testPolicy(), func() { t.Fatal("force-submit after Stop") }, zerolog.Nop())
	w.Stop()
	w.Stop() // idempotent

	base := time.Now()
	for i := 0; i < 4; i++ {
		if got := w.Observe(event(fmt.Sprintf("e%d", i), model.ViolationTabHidden, base.Add(time.Duration(i)*time.Second))); got != OutcomeIgnored {
			t.Fatalf("expected ignored after Stop, got %v", got)
		}
	}
	if w.Count() != 0 {
		t.Fatalf("expected zero count after Stop, got %d", w.Count())
	}
}

func TestWatchdogRejectsNonQualifyingKind(t *testing.T) {
	w := NewWatchdog(testPolicy(), func() {}, zerolog.Nop())
	if got := w.Observe(event("e1", model.ViolationKind("MOUSE_MOVED"), time.Now())); got != OutcomeIgnored {
		t.Fatalf("expected ignored for unknown kind, got %v", got)
	}
}
