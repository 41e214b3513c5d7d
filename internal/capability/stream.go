package capability

import (
	"context"
	"sync"
)

// grant is the outcome of the client-side getUserMedia handshake.
type grant struct {
	granted       bool
	faceDetection bool
}

// StreamProvider is the production MediaProvider. The candidate's browser
// owns the physical camera; the server sees it as a stream of Frame samples
// pushed over the exam WebSocket. Acquire blocks until the client reports
// the getUserMedia outcome in its begin handshake.
type StreamProvider struct {
	mu       sync.Mutex
	decided  chan struct{}
	outcome  grant
	resolved bool
	session  *streamSession
}

// NewStreamProvider creates a provider awaiting the client's media handshake.
func NewStreamProvider() *StreamProvider {
	return &StreamProvider{decided: make(chan struct{})}
}

// Grant resolves the handshake: the client obtained a media stream.
// faceDetection reports whether the client runtime can detect faces.
func (p *StreamProvider) Grant(faceDetection bool) {
	p.resolve(grant{granted: true, faceDetection: faceDetection})
}

// Deny resolves the handshake: permission declined or no devices.
func (p *StreamProvider) Deny() {
	p.resolve(grant{granted: false})
}

func (p *StreamProvider) resolve(g grant) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		return
	}
	p.resolved = true
	p.outcome = g
	close(p.decided)
}

// Acquire implements MediaProvider.
func (p *StreamProvider) Acquire(ctx context.Context) (CaptureSession, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.decided:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.outcome.granted {
		return nil, ErrPermissionDenied
	}
	p.session = &streamSession{faceDetection: p.outcome.faceDetection}
	return p.session, nil
}

// Push feeds a sample from the client into the acquired session. Samples
// arriving before Acquire or after Close are dropped.
func (p *StreamProvider) Push(f Frame) {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s != nil {
		s.push(f)
	}
}

// streamSession buffers the latest pushed frame.
type streamSession struct {
	mu            sync.Mutex
	latest        Frame
	hasFrame      bool
	closed        bool
	faceDetection bool
}

func (s *streamSession) push(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.faceDetection {
		// The client declared no face detection in its handshake, so the
		// faces field carries no signal. Normalize it to the unavailable
		// marker; a zero value here must never read as an empty room.
		f.Faces = -1
	}
	s.latest = f
	s.hasFrame = true
}

func (s *streamSession) Frame() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.hasFrame {
		return Frame{}, false
	}
	return s.latest, true
}

func (s *streamSession) AudioLevel() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.hasFrame {
		return 0
	}
	return s.latest.AudioLevel
}

func (s *streamSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.hasFrame = false
	return nil
}

// RemoteDetector reads the face count the client-side detector embedded in
// each frame. The client advertises detection support in its handshake; a
// session without it degrades via ErrUnavailable.
type RemoteDetector struct{}

// Count implements FaceDetector.
func (RemoteDetector) Count(f Frame) (int, error) {
	if f.Faces < 0 {
		return 0, ErrUnavailable
	}
	return f.Faces, nil
}
