package proctor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/provex/proctor-backend/internal/capability"
	"github.com/rs/zerolog"
)

func acquiredMonitor(t *testing.T, media *fakeMedia, detector capability.FaceDetector, onAbsence func()) *PresenceMonitor {
	t.Helper()
	m := NewPresenceMonitor(media, detector, testPolicy(), onAbsence, zerolog.Nop())
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	return m
}

func TestPresenceAcquirePermissionDenied(t *testing.T) {
	media := &fakeMedia{denyPermission: true}
	m := NewPresenceMonitor(media, capability.RemoteDetector{}, testPolicy(), func() {}, zerolog.Nop())

	err := m.Acquire(context.Background())
	if !errors.Is(err, capability.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestPresenceTransientAbsenceIsNotConfirmed(t *testing.T) {
	var absences atomic.Int32
	media := &fakeMedia{}
	m := acquiredMonitor(t, media, capability.RemoteDetector{}, func() { absences.Add(1) })
	defer m.Release()

	base := time.Now()
	media.setFaces(1)
	m.check(base)

	// Zero faces for less than the inactivity threshold (policy: 60ms).
	media.setFaces(0)
	m.check(base.Add(10 * time.Millisecond))
	m.check(base.Add(30 * time.Millisecond))

	// Face reappears before the threshold: pending state clears.
	media.setFaces(1)
	m.check(base.Add(50 * time.Millisecond))

	// Much later another zero-face streak starts; the old timestamp must
	// not leak into it.
	media.setFaces(0)
	m.check(base.Add(200 * time.Millisecond))

	if absences.Load() != 0 {
		t.Fatalf("transient absence was confirmed")
	}
	if m.State() != PresencePresent {
		t.Fatalf("expected Present, got %v", m.State())
	}
}

func TestPresenceSustainedAbsenceFiresExactlyOnce(t *testing.T) {
	var absences atomic.Int32
	media := &fakeMedia{}
	m := acquiredMonitor(t, media, capability.RemoteDetector{}, func() { absences.Add(1) })
	defer m.Release()

	base := time.Now()
	media.setFaces(0)
	m.check(base)                             // pending-absent starts
	m.check(base.Add(30 * time.Millisecond))  // still below threshold
	m.check(base.Add(70 * time.Millisecond))  // crosses 60ms threshold
	m.check(base.Add(100 * time.Millisecond)) // must not fire again
	m.check(base.Add(200 * time.Millisecond))

	if got := absences.Load(); got != 1 {
		t.Fatalf("expected absence confirmed exactly once, got %d", got)
	}
	if m.State() != PresenceAbsent {
		t.Fatalf("expected Absent, got %v", m.State())
	}
}

func TestPresenceScenarioShortDropBelowThreshold(t *testing.T) {
	// 0 faces for 5 ticks worth of time against a 20-tick threshold, then
	// a face reappears: no violation, session uninterrupted.
	var absences atomic.Int32
	media := &fakeMedia{}
	m := NewPresenceMonitor(media, capability.RemoteDetector{}, testPolicy(), func() { absences.Add(1) }, zerolog.Nop())
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer m.Release()

	base := time.Now()
	media.setFaces(0)
	m.check(base)
	m.check(base.Add(5 * time.Millisecond))
	media.setFaces(1)
	m.check(base.Add(15 * time.Millisecond))

	if absences.Load() != 0 {
		t.Fatalf("short drop recorded an absence violation")
	}
}

type unavailableDetector struct{}

func (unavailableDetector) Count(capability.Frame) (int, error) {
	return 0, capability.ErrUnavailable
}

func TestPresenceDegradesWhenDetectionUnavailable(t *testing.T) {
	var absences atomic.Int32
	media := &fakeMedia{}
	m := acquiredMonitor(t, media, unavailableDetector{}, func() { absences.Add(1) })
	defer m.Release()

	media.setFaces(0)
	base := time.Now()
	if cont := m.check(base); cont {
		t.Fatalf("expected check loop to stop after capability loss")
	}
	// Enforcement is disabled for the rest of the session.
	for i := 1; i < 30; i++ {
		m.check(base.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	if absences.Load() != 0 {
		t.Fatalf("absence fired despite unavailable detection")
	}
	if m.State() != PresencePresent {
		t.Fatalf("degraded session must remain Present, got %v", m.State())
	}
}

func TestPresenceIgnoresZeroFacesWithoutClientDetection(t *testing.T) {
	// A client that never declared face detection may still send samples
	// whose faces field sits at the zero value. That must degrade into
	// "detection unavailable", never into a confirmed absence.
	var absences atomic.Int32
	provider := capability.NewStreamProvider()
	provider.Grant(false)

	m := NewPresenceMonitor(provider, capability.RemoteDetector{}, testPolicy(), func() { absences.Add(1) }, zerolog.Nop())
	if err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer m.Release()

	provider.Push(capability.Frame{Faces: 0})

	base := time.Now()
	if cont := m.check(base); cont {
		t.Fatalf("expected enforcement to stop for a detection-less session")
	}
	// Well past the inactivity threshold; still nothing may fire.
	provider.Push(capability.Frame{Faces: 0})
	m.check(base.Add(500 * time.Millisecond))

	if absences.Load() != 0 {
		t.Fatalf("absence confirmed for a session that declared no face detection")
	}
	if m.State() != PresencePresent {
		t.Fatalf("degraded session must remain Present, got %v", m.State())
	}
}

func TestPresenceReleaseIdempotentAndClosesCapture(t *testing.T) {
	media := &fakeMedia{}
	m := acquiredMonitor(t, media, capability.RemoteDetector{}, func() {})
	m.Start()

	m.Release()
	m.Release()
	m.Release()

	if !media.isClosed() {
		t.Fatalf("capture session not closed on release")
	}

	// Post-release ticks must be inert.
	media.setFaces(0)
	base := time.Now()
	if cont := m.check(base); cont {
		t.Fatalf("expected check to report stopped after release")
	}
}

func TestPresenceReleaseSuppressesPendingAbsence(t *testing.T) {
	var absences atomic.Int32
	media := &fakeMedia{}
	m := acquiredMonitor(t, media, capability.RemoteDetector{}, func() { absences.Add(1) })

	base := time.Now()
	media.setFaces(0)
	m.check(base) // arms the pending-absent state

	m.Release()

	// Past the inactivity threshold, but the monitor is released.
	if cont := m.check(base.Add(500 * time.Millisecond)); cont {
		t.Fatalf("expected released monitor to report stopped")
	}
	if absences.Load() != 0 {
		t.Fatalf("absence fired after release")
	}
}

func TestPresenceSkipsTicksWithoutFrames(t *testing.T) {
	var absences atomic.Int32
	media := &fakeMedia{}
	m := acquiredMonitor(t, media, capability.RemoteDetector{}, func() { absences.Add(1) })
	defer m.Release()

	base := time.Now()
	for i := 0; i < 20; i++ {
		m.check(base.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	if absences.Load() != 0 {
		t.Fatalf("absence inferred without any frame")
	}
}

func TestPresenceLoopConfirmsAbsenceEndToEnd(t *testing.T) {
	// Full-loop variant of the sustained-absence property: real tickers,
	// real time, small thresholds from testPolicy.
	var absences atomic.Int32
	media := &fakeMedia{}
	m := acquiredMonitor(t, media, capability.RemoteDetector{}, func() { absences.Add(1) })
	defer m.Release()

	media.setFaces(0)
	m.Start()

	deadline := time.After(2 * time.Second)
	for absences.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("absence never confirmed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Give stray ticks a chance to double-fire, then assert exactly once.
	time.Sleep(200 * time.Millisecond)
	if got := absences.Load(); got != 1 {
		t.Fatalf("expected exactly one absence, got %d", got)
	}
}
