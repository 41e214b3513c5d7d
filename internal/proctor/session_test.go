package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/provex/proctor-backend/internal/capability"
	"github.com/provex/proctor-backend/internal/model"
)

func beginSession(t *testing.T, s *Session, media *fakeMedia) {
	t.Helper()
	media.setFaces(1)
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if s.Phase() != model.PhaseInProgress {
		t.Fatalf("expected InProgress, got %v", s.Phase())
	}
}

// Scenario: candidate answers everything correctly and submits before the
// timeout. Verdict Pass with a full correct count.
func TestSessionManualSubmitAllCorrect(t *testing.T) {
	exam := testExam(4)
	media := &fakeMedia{}
	sink := &fakeSink{}
	events := &recordingEvents{}
	s, source := newTestSession(exam, media, sink, events)

	beginSession(t, s, media)
	if source.attempts != 1 {
		t.Fatalf("expected one mark-attempted call, got %d", source.attempts)
	}

	for i := range exam.Questions {
		if err := s.Answer(i, "a"); err != nil {
			t.Fatalf("answer %d: %v", i, err)
		}
	}
	if err := s.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if s.Phase() != model.PhaseCompleted {
		t.Fatalf("expected Completed, got %v", s.Phase())
	}
	report, sinkErr := s.Result()
	if sinkErr != nil {
		t.Fatalf("sink error: %v", sinkErr)
	}
	if report.Trigger != model.TriggerManual {
		t.Fatalf("expected manual trigger, got %v", report.Trigger)
	}
	if report.CorrectCount() != len(exam.Questions) {
		t.Fatalf("expected all correct, got %d", report.CorrectCount())
	}
	if report.Verdict != model.VerdictPass {
		t.Fatalf("expected Pass, got %v", report.Verdict)
	}
	if events.exits != 1 {
		t.Fatalf("fullscreen exit not requested on teardown")
	}
	if !media.isClosed() {
		t.Fatalf("capture handle not released after completion")
	}
}

// Scenario: three tab-hide events force submission on the third; grading
// runs with whatever answers existed at that moment.
func TestSessionForceSubmitOnThirdViolation(t *testing.T) {
	exam := testExam(4)
	media := &fakeMedia{}
	sink := &fakeSink{}
	events := &recordingEvents{}
	s, _ := newTestSession(exam, media, sink, events)

	beginSession(t, s, media)
	_ = s.Answer(0, "a")
	_ = s.Answer(1, "b")

	base := time.Now()
	for i := 0; i < 3; i++ {
		s.ReportIntegrity(IntegrityEvent{
			ID:   fmt.Sprintf("e%d", i),
			Kind: model.ViolationTabHidden,
			At:   base.Add(time.Duration(i) * 2 * time.Second),
		})
		s.AckWarning()
	}

	if s.Phase() != model.PhaseCompleted {
		t.Fatalf("expected force-submitted attempt to be Completed, got %v", s.Phase())
	}
	report, _ := s.Result()
	if report.Trigger != model.TriggerForceSubmit {
		t.Fatalf("expected force-submit trigger, got %v", report.Trigger)
	}
	if report.CorrectCount() != 1 {
		t.Fatalf("expected grading over the partial answer set, got %d correct", report.CorrectCount())
	}
	if s.ViolationCount() != 3 {
		t.Fatalf("expected 3 violations, got %d", s.ViolationCount())
	}
	if len(events.warnings) != 2 {
		t.Fatalf("expected warnings for violations 1 and 2, got %d", len(events.warnings))
	}
}

// Scenario: camera permission denied. The attempt never leaves Instructions
// and no report is ever produced.
func TestSessionPermissionDeniedBlocksStart(t *testing.T) {
	exam := testExam(2)
	media := &fakeMedia{denyPermission: true}
	sink := &fakeSink{}
	s, source := newTestSession(exam, media, sink, &recordingEvents{})

	err := s.Begin(context.Background())
	if !errors.Is(err, capability.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if s.Phase() != model.PhaseInstructions {
		t.Fatalf("phase must remain Instructions, got %v", s.Phase())
	}
	if source.attempts != 0 {
		t.Fatalf("attempt marked despite failed start")
	}
	if sink.count() != 0 {
		t.Fatalf("report produced for an unstarted attempt")
	}
}

func TestSessionOutOfWindowBlocksStart(t *testing.T) {
	exam := testExam(2)
	past := time.Now().Add(-2 * time.Hour)
	closed := time.Now().Add(-time.Hour)
	exam.StartWindow = &past
	exam.EndWindow = &closed

	media := &fakeMedia{}
	s, _ := newTestSession(exam, media, &fakeSink{}, &recordingEvents{})

	if err := s.Begin(context.Background()); !errors.Is(err, ErrOutOfWindow) {
		t.Fatalf("expected ErrOutOfWindow, got %v", err)
	}
	if s.Phase() != model.PhaseInstructions {
		t.Fatalf("phase must remain Instructions, got %v", s.Phase())
	}
}

func TestSessionAbsenceConfirmedEndsAttempt(t *testing.T) {
	exam := testExam(2)
	media := &fakeMedia{}
	sink := &fakeSink{}
	events := &recordingEvents{}
	s, _ := newTestSession(exam, media, sink, events)

	beginSession(t, s, media)
	media.setFaces(0)

	deadline := time.After(2 * time.Second)
	for s.Phase() != model.PhaseCompleted {
		select {
		case <-deadline:
			t.Fatalf("absence never ended the attempt")
		case <-time.After(10 * time.Millisecond):
		}
	}

	report, _ := s.Result()
	if report.Trigger != model.TriggerAbsence {
		t.Fatalf("expected absence trigger, got %v", report.Trigger)
	}
	if events.absenceCount() != 1 {
		t.Fatalf("expected one absence event, got %d", events.absenceCount())
	}
}

// All four triggers race; side effects must happen exactly once regardless
// of interleaving.
func TestSessionTriggerInterleavingsFinalizeOnce(t *testing.T) {
	for round := 0; round < 20; round++ {
		exam := testExam(3)
		media := &fakeMedia{}
		sink := &fakeSink{}
		events := &recordingEvents{}
		s, _ := newTestSession(exam, media, sink, events)
		beginSession(t, s, media)

		var wg sync.WaitGroup
		fire := []func(){
			func() { s.finalize(model.TriggerTimeExpired) },
			func() { s.finalize(model.TriggerForceSubmit) },
			func() { s.finalize(model.TriggerAbsence) },
			func() { _ = s.Submit() },
		}
		for _, f := range fire {
			wg.Add(1)
			go func(f func()) {
				defer wg.Done()
				f()
			}(f)
		}
		wg.Wait()

		if sink.count() != 1 {
			t.Fatalf("round %d: report submitted %d times", round, sink.count())
		}
		if events.resultCount() != 1 {
			t.Fatalf("round %d: result delivered %d times", round, events.resultCount())
		}
		if s.Phase() != model.PhaseCompleted {
			t.Fatalf("round %d: expected Completed", round)
		}
	}
}

// After Completed, no monitor input produces observable effects.
func TestSessionTeardownIsInert(t *testing.T) {
	exam := testExam(2)
	media := &fakeMedia{}
	sink := &fakeSink{}
	events := &recordingEvents{}
	s, _ := newTestSession(exam, media, sink, events)

	beginSession(t, s, media)
	if err := s.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := s.Submit(); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress on re-submit, got %v", err)
	}
	if err := s.Answer(0, "a"); !errors.Is(err, ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress on post-completion answer, got %v", err)
	}
	if got := s.ReportIntegrity(IntegrityEvent{ID: "late", Kind: model.ViolationTabHidden, At: time.Now()}); got != OutcomeIgnored {
		t.Fatalf("post-completion violation not ignored: %v", got)
	}

	s.Close()
	s.Close()

	if sink.count() != 1 {
		t.Fatalf("extra report after teardown: %d", sink.count())
	}
}

func TestSessionCloseWithoutSubmitProducesNoReport(t *testing.T) {
	exam := testExam(2)
	media := &fakeMedia{}
	sink := &fakeSink{}
	s, _ := newTestSession(exam, media, sink, &recordingEvents{})

	beginSession(t, s, media)
	s.Close()

	if sink.count() != 0 {
		t.Fatalf("abandoned attempt produced a report")
	}
	if !media.isClosed() {
		t.Fatalf("capture handle leaked on close")
	}
}

func TestSessionSinkFailureSurfacedWithRetry(t *testing.T) {
	exam := testExam(2)
	media := &fakeMedia{}
	sink := &fakeSink{fail: true}
	events := &recordingEvents{}
	s, _ := newTestSession(exam, media, sink, events)

	beginSession(t, s, media)
	_ = s.Answer(0, "a")
	_ = s.Answer(1, "a")
	if err := s.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Verdict is shown even though the server-side record failed.
	report, sinkErr := s.Result()
	if report == nil || report.Verdict != model.VerdictPass {
		t.Fatalf("verdict lost on transport failure")
	}
	if sinkErr == nil {
		t.Fatalf("transport failure not surfaced")
	}

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	if err := s.RetryReport(context.Background()); err != nil {
		t.Fatalf("manual retry failed: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one stored report after retry, got %d", sink.count())
	}
}

func TestSessionBeginTwice(t *testing.T) {
	exam := testExam(1)
	media := &fakeMedia{}
	s, _ := newTestSession(exam, media, &fakeSink{}, &recordingEvents{})

	beginSession(t, s, media)
	if err := s.Begin(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSessionAnswerValidation(t *testing.T) {
	exam := testExam(2)
	media := &fakeMedia{}
	s, _ := newTestSession(exam, media, &fakeSink{}, &recordingEvents{})
	beginSession(t, s, media)
	defer s.Close()

	if err := s.Answer(-1, "a"); err == nil {
		t.Fatalf("negative index accepted")
	}
	if err := s.Answer(5, "a"); err == nil {
		t.Fatalf("out-of-range index accepted")
	}
	if err := s.Answer(0, "z"); err == nil {
		t.Fatalf("unknown option accepted")
	}
}
