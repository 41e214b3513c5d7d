package proctor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/provex/proctor-backend/internal/capability"
	"github.com/provex/proctor-backend/internal/config"
	"github.com/rs/zerolog"
)

// PresenceState is the monitor's current verdict on the candidate.
type PresenceState string

const (
	PresencePresent PresenceState = "PRESENT"
	PresenceAbsent  PresenceState = "ABSENT"
)

// PresenceMonitor owns the camera/microphone capture handle for the lifetime
// of an in-progress attempt. It runs two independent periodic loops: a
// presence check that applies a dwell-time rule to face counts, and an
// audio-level sampler used only for live feedback.
//
// The dwell-time rule is deliberately two-step: zero faces first flips an
// internal pending-absent state with a timestamp, and only zero faces
// sustained past the inactivity threshold confirms the absence. A face
// reappearing before the threshold clears the pending state without
// recording anything, so brief occlusions never end an attempt.
type PresenceMonitor struct {
	provider  capability.MediaProvider
	detector  capability.FaceDetector
	policy    config.ProctorPolicy
	onAbsence func()
	log       zerolog.Logger

	mu             sync.Mutex
	session        capability.CaptureSession
	state          PresenceState
	absenceStarted time.Time // zero when not pending-absent
	absenceFired   bool
	enforcing      bool
	audioLevel     float64
	released       bool

	stop     chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewPresenceMonitor creates a presence monitor. onAbsence runs exactly once,
// from the check loop's goroutine, when sustained absence is confirmed.
func NewPresenceMonitor(
	provider capability.MediaProvider,
	detector capability.FaceDetector,
	policy config.ProctorPolicy,
	onAbsence func(),
	log zerolog.Logger,
) *PresenceMonitor {
	return &PresenceMonitor{
		provider:  provider,
		detector:  detector,
		policy:    policy,
		onAbsence: onAbsence,
		log:       log.With().Str("component", "presence_monitor").Logger(),
		state:     PresencePresent,
		enforcing: true,
		stop:      make(chan struct{}),
	}
}

// Acquire requests the camera/microphone capture handle. A
// capability.ErrPermissionDenied failure blocks the transition into
// InProgress; the caller surfaces a reload prompt and never retries
// automatically.
func (m *PresenceMonitor) Acquire(ctx context.Context) error {
	session, err := m.provider.Acquire(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	return nil
}

// Start launches the presence-check and audio-sampling loops. Must be called
// after a successful Acquire.
func (m *PresenceMonitor) Start() {
	m.mu.Lock()
	if m.started || m.session == nil || m.released {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.checkLoop()
	go m.audioLoop()
}

func (m *PresenceMonitor) checkLoop() {
	interval := m.policy.CheckInterval
	if interval < m.policy.MinCheckSpacing {
		interval = m.policy.MinCheckSpacing
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if !m.check(time.Now()) {
				return
			}
		}
	}
}

// check runs one presence tick. Returns false when the loop should stop
// (enforcement disabled or monitor released). The absence callback is
// invoked without the monitor lock held.
func (m *PresenceMonitor) check(now time.Time) bool {
	m.mu.Lock()
	if m.released || !m.enforcing {
		m.mu.Unlock()
		return false
	}

	frame, ok := m.session.Frame()
	if !ok {
		// No sample yet; nothing to judge.
		m.mu.Unlock()
		return true
	}

	faces, err := m.detector.Count(frame)
	if err != nil {
		if errors.Is(err, capability.ErrUnavailable) {
			// Graceful degradation: log once and skip presence
			// enforcement for the rest of the session. The exam
			// itself is never blocked by a missing detector.
			m.enforcing = false
			m.mu.Unlock()
			m.log.Warn().Msg("Face detection unavailable, presence enforcement disabled for this session")
			return false
		}
		m.mu.Unlock()
		m.log.Error().Err(err).Msg("Face detection failed, skipping tick")
		return true
	}

	if faces >= 1 {
		// Candidate regained presence before the threshold fired; a
		// transient absence records no violation.
		m.state = PresencePresent
		m.absenceStarted = time.Time{}
		m.mu.Unlock()
		return true
	}

	if m.absenceStarted.IsZero() {
		m.absenceStarted = now
		m.mu.Unlock()
		return true
	}

	if now.Sub(m.absenceStarted) < m.policy.InactivityThreshold || m.absenceFired {
		m.mu.Unlock()
		return true
	}

	m.state = PresenceAbsent
	m.absenceFired = true
	m.absenceStarted = time.Time{}
	m.mu.Unlock()

	m.log.Warn().
		Dur("threshold", m.policy.InactivityThreshold).
		Msg("Sustained absence confirmed")
	m.onAbsence()
	return true
}

func (m *PresenceMonitor) audioLoop() {
	ticker := time.NewTicker(m.policy.AudioSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.released {
				m.mu.Unlock()
				return
			}
			m.audioLevel = m.session.AudioLevel()
			m.mu.Unlock()
		}
	}
}

// State returns the current presence verdict.
func (m *PresenceMonitor) State() PresenceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AudioLevel returns the last sampled microphone level.
func (m *PresenceMonitor) AudioLevel() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.audioLevel
}

// Release stops both loops and closes the capture handle. Idempotent, never
// blocks, and safe to call from the absence callback itself. A tick that has
// already passed the released gate may still invoke the absence callback
// concurrently with Release, so the callback must tolerate one late fire;
// the finalize coordinator's claim absorbs it.
func (m *PresenceMonitor) Release() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	session := m.session
	m.session = nil
	already := m.released
	m.released = true
	m.mu.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			m.log.Error().Err(err).Msg("Capture close failed")
		}
	}
	if !already {
		m.log.Debug().Msg("Presence monitor released")
	}
}
