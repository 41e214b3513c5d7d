package capability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStreamProviderGrantAndPush(t *testing.T) {
	p := NewStreamProvider()
	p.Grant(true)

	session, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, ok := session.Frame(); ok {
		t.Fatalf("frame available before any push")
	}

	p.Push(Frame{Faces: 2, AudioLevel: 0.4, CapturedAt: time.Now()})

	frame, ok := session.Frame()
	if !ok {
		t.Fatalf("pushed frame not visible")
	}
	if frame.Faces != 2 {
		t.Fatalf("expected 2 faces, got %d", frame.Faces)
	}
	if session.AudioLevel() != 0.4 {
		t.Fatalf("expected audio level 0.4, got %v", session.AudioLevel())
	}
}

func TestStreamProviderDeny(t *testing.T) {
	p := NewStreamProvider()
	p.Deny()

	if _, err := p.Acquire(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestStreamProviderAcquireHonorsContext(t *testing.T) {
	p := NewStreamProvider()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStreamProviderFirstDecisionWins(t *testing.T) {
	p := NewStreamProvider()
	p.Grant(false)
	p.Deny() // must not override the grant

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("expected granted acquire, got %v", err)
	}
}

func TestStreamSessionCloseIdempotent(t *testing.T) {
	p := NewStreamProvider()
	p.Grant(true)
	session, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	p.Push(Frame{Faces: 1})
	if err := session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	// Post-close pushes and reads are inert.
	p.Push(Frame{Faces: 1})
	if _, ok := session.Frame(); ok {
		t.Fatalf("frame visible after close")
	}
	if session.AudioLevel() != 0 {
		t.Fatalf("audio level visible after close")
	}
}

func TestStreamSessionWithoutFaceDetection(t *testing.T) {
	p := NewStreamProvider()
	p.Grant(false) // media granted, no face detection

	session, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A detection-less client may leave faces at its zero value; that must
	// surface as "unavailable", never as an empty room.
	p.Push(Frame{Faces: 0, AudioLevel: 0.3, CapturedAt: time.Now()})

	frame, ok := session.Frame()
	if !ok {
		t.Fatalf("pushed frame not visible")
	}
	if _, err := (RemoteDetector{}).Count(frame); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable without face detection, got faces=%d err=%v", frame.Faces, err)
	}
	if session.AudioLevel() != 0.3 {
		t.Fatalf("audio level lost, got %v", session.AudioLevel())
	}
}

func TestRemoteDetectorUnavailable(t *testing.T) {
	d := RemoteDetector{}

	if _, err := d.Count(Frame{Faces: -1}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for detection-less client, got %v", err)
	}
	n, err := d.Count(Frame{Faces: 3})
	if err != nil || n != 3 {
		t.Fatalf("expected 3 faces, got %d (%v)", n, err)
	}
}
