// Package capability abstracts the candidate-side capture capabilities the
// proctoring core depends on: camera/microphone acquisition, frame sampling,
// and face detection. Each capability may be missing on a given client; the
// core detects that and degrades instead of failing the whole session, except
// media acquisition itself, which is mandatory to start an attempt.
package capability

import (
	"context"
	"errors"
	"time"
)

// Common capability errors.
var (
	// ErrPermissionDenied means the candidate declined camera/microphone
	// access or no capture devices exist. Fatal to starting an attempt.
	ErrPermissionDenied = errors.New("camera/microphone permission denied")

	// ErrUnavailable means a non-mandatory capability (face detection,
	// fullscreen control) is missing on the client runtime.
	ErrUnavailable = errors.New("capability unavailable")

	// ErrClosed is returned when a capture session is used after Close.
	ErrClosed = errors.New("capture session closed")
)

// Frame is one sampled observation from the candidate's capture pipeline.
type Frame struct {
	// Faces is the face count reported by the client-side detector.
	// Negative when the client has no face-detection capability.
	Faces int
	// AudioLevel is the normalized microphone level in [0, 1].
	AudioLevel float64
	// CapturedAt is when the client sampled the frame.
	CapturedAt time.Time
}

// MediaProvider grants exclusive access to the candidate's capture pipeline.
type MediaProvider interface {
	// Acquire requests camera+microphone access. Blocks until the client
	// grants or denies, or ctx expires. Returns ErrPermissionDenied when
	// the candidate declines or has no devices.
	Acquire(ctx context.Context) (CaptureSession, error)
}

// CaptureSession is an acquired capture handle. It is exclusively owned by
// the presence monitor for the lifetime of an in-progress attempt.
type CaptureSession interface {
	// Frame returns the most recent sampled frame. The second return is
	// false when no frame has arrived yet or the session is closed.
	Frame() (Frame, bool)
	// AudioLevel returns the latest microphone level for live feedback.
	AudioLevel() float64
	// Close stops the capture and releases the underlying media tracks.
	// Safe to call multiple times.
	Close() error
}

// FaceDetector counts faces in a frame. Count returns ErrUnavailable when
// the detection capability does not exist for this session.
type FaceDetector interface {
	Count(f Frame) (int, error)
}
