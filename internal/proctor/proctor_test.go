package proctor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/provex/proctor-backend/internal/capability"
	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/rs/zerolog"
)

// ─── Shared test fixtures ───────────────────────────────────────────

func testPolicy() config.ProctorPolicy {
	return config.ProctorPolicy{
		CheckInterval:       10 * time.Millisecond,
		MinCheckSpacing:     5 * time.Millisecond,
		AudioSampleInterval: 10 * time.Millisecond,
		InactivityThreshold: 60 * time.Millisecond,
		ViolationDebounce:   time.Millisecond,
		ViolationLimit:      3,
		AcquireTimeout:      time.Second,
	}
}

func testExam(questions int) *model.ExamDefinition {
	exam := &model.ExamDefinition{
		ID:              uuid.New(),
		Title:           "Algorithms Midterm",
		DurationSeconds: 600,
		TotalMarks:      questions,
		PassingMarks:    (questions + 1) / 2,
		Status:          model.ExamStatusPublished,
	}
	for i := 0; i < questions; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			ID:            uuid.New(),
			ExamID:        exam.ID,
			Prompt:        "prompt",
			Options:       map[string]string{"a": "1", "b": "2", "c": "3"},
			CorrectOption: "a",
			OrderNum:      i,
		})
	}
	return exam
}

// fakeMedia is a MediaProvider with scripted acquisition and frames.
type fakeMedia struct {
	denyPermission bool

	mu     sync.Mutex
	frame  capability.Frame
	has    bool
	closed bool
}

func (f *fakeMedia) Acquire(ctx context.Context) (capability.CaptureSession, error) {
	if f.denyPermission {
		return nil, capability.ErrPermissionDenied
	}
	return f, nil
}

func (f *fakeMedia) setFaces(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = capability.Frame{Faces: n, CapturedAt: time.Now()}
	f.has = true
}

func (f *fakeMedia) Frame() (capability.Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || !f.has {
		return capability.Frame{}, false
	}
	return f.frame, true
}

func (f *fakeMedia) AudioLevel() float64 { return 0.5 }

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeMedia) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeSource implements ContentSource and records MarkAttempted calls.
type fakeSource struct {
	mu       sync.Mutex
	attempts int
	failMark bool
}

func (f *fakeSource) FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	return nil, errors.New("not used")
}

func (f *fakeSource) MarkAttempted(ctx context.Context, examID uuid.UUID, studentID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMark {
		return errors.New("mark attempted failed")
	}
	f.attempts++
	return nil
}

// fakeSink implements ReportSink with a toggleable failure.
type fakeSink struct {
	mu      sync.Mutex
	fail    bool
	reports []*model.Report
}

func (f *fakeSink) SubmitReport(ctx context.Context, report *model.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("transport failure")
	}
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

// recordingEvents counts every event delivery.
type recordingEvents struct {
	mu         sync.Mutex
	warnings   []int
	absences   int
	exits      int
	results    []*model.Report
	resultErrs []error
}

func (r *recordingEvents) OnWarning(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, count)
}

func (r *recordingEvents) OnAbsenceConfirmed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.absences++
}

func (r *recordingEvents) OnExitFullscreen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits++
}

func (r *recordingEvents) OnResult(report *model.Report, sinkErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, report)
	r.resultErrs = append(r.resultErrs, sinkErr)
}

func (r *recordingEvents) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

func (r *recordingEvents) absenceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.absences
}

func newTestSession(exam *model.ExamDefinition, media *fakeMedia, sink *fakeSink, events Events) (*Session, *fakeSource) {
	source := &fakeSource{}
	s := NewSession(exam, 7, testPolicy(), Deps{
		Source:   source,
		Sink:     sink,
		Media:    media,
		Detector: capability.RemoteDetector{},
		Events:   events,
		Log:      zerolog.Nop(),
	})
	return s, source
}
