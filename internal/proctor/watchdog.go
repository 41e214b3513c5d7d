package proctor

import (
	"sync"
	"time"

	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/rs/zerolog"
)

// IntegrityEvent is a single browser-level integrity signal reported by the
// candidate's client: the tab lost foreground visibility or mandatory
// fullscreen was exited.
type IntegrityEvent struct {
	// ID is the client-assigned identifier of the logical event. Both the
	// visibility and fullscreen listeners can fire for the same physical
	// action; they share an ID so the watchdog counts the event once.
	ID   string
	Kind model.ViolationKind
	At   time.Time
}

// WatchdogOutcome is the watchdog's decision for one observed event.
type WatchdogOutcome int

const (
	// OutcomeIgnored: duplicate, debounced, non-qualifying, or post-stop.
	OutcomeIgnored WatchdogOutcome = iota
	// OutcomeCounted: violation recorded but the warning modal is already
	// showing, so no new warning is surfaced.
	OutcomeCounted
	// OutcomeWarned: violation recorded, surface a warning modal.
	OutcomeWarned
	// OutcomeForced: the violation limit was reached; force-submit fired.
	OutcomeForced
)

// Watchdog counts integrity violations and escalates to force-submit at the
// configured limit. The count is monotonic; regaining fullscreen or focus
// never resets it.
type Watchdog struct {
	limit    int
	debounce time.Duration
	onForce  func()
	log      zerolog.Logger

	mu          sync.Mutex
	count       int
	lastID      string
	lastAt      time.Time
	warningOpen bool
	stopped     bool
}

// NewWatchdog creates a watchdog. onForce runs exactly once, without the
// watchdog lock held, when the violation count reaches the policy limit.
func NewWatchdog(policy config.ProctorPolicy, onForce func(), log zerolog.Logger) *Watchdog {
	return &Watchdog{
		limit:    policy.ViolationLimit,
		debounce: policy.ViolationDebounce,
		onForce:  onForce,
		log:      log.With().Str("component", "watchdog").Logger(),
	}
}

// Observe records one integrity event and returns the policy decision.
// Events with a repeated ID, or arriving within the debounce window of the
// previous one, are collapsed into the earlier violation.
func (w *Watchdog) Observe(ev IntegrityEvent) WatchdogOutcome {
	if !ev.Kind.Qualifies() {
		return OutcomeIgnored
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return OutcomeIgnored
	}
	if ev.ID != "" && ev.ID == w.lastID {
		w.mu.Unlock()
		return OutcomeIgnored
	}
	if w.count > 0 && ev.At.Sub(w.lastAt) < w.debounce {
		w.mu.Unlock()
		return OutcomeIgnored
	}

	w.count++
	w.lastID = ev.ID
	w.lastAt = ev.At
	count := w.count

	if count >= w.limit {
		// Further violations are moot post-submission.
		w.stopped = true
		w.mu.Unlock()
		w.log.Warn().Int("violations", count).Msg("Violation limit reached, forcing submission")
		w.onForce()
		return OutcomeForced
	}

	warned := !w.warningOpen
	if warned {
		w.warningOpen = true
	}
	w.mu.Unlock()

	w.log.Warn().
		Int("violations", count).
		Str("kind", string(ev.Kind)).
		Msg("Integrity violation recorded")

	if warned {
		return OutcomeWarned
	}
	return OutcomeCounted
}

// AckWarning releases the warning modal gate so the next violation can
// surface a fresh warning.
func (w *Watchdog) AckWarning() {
	w.mu.Lock()
	w.warningOpen = false
	w.mu.Unlock()
}

// Count returns the current violation count.
func (w *Watchdog) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Stop makes the watchdog inert. Idempotent.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
}
