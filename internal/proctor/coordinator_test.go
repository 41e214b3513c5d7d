package proctor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/provex/proctor-backend/internal/model"
	"github.com/rs/zerolog"
)

func newTestCoordinator(exam *model.ExamDefinition, answers map[int]string, sink *fakeSink, teardown []func()) *Coordinator {
	return NewCoordinator(exam, 7, func() map[int]string { return answers }, teardown, sink, zerolog.Nop())
}

func TestCoordinatorFinalizeFirstCallerWins(t *testing.T) {
	exam := testExam(4)
	sink := &fakeSink{}

	var torn atomic.Int32
	coord := newTestCoordinator(exam, map[int]string{0: "a"}, sink, []func(){
		func() { torn.Add(1) },
	})

	triggers := []model.Trigger{
		model.TriggerTimeExpired,
		model.TriggerForceSubmit,
		model.TriggerAbsence,
		model.TriggerManual,
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, trig := range triggers {
		wg.Add(1)
		go func(trig model.Trigger) {
			defer wg.Done()
			if coord.Finalize(trig) {
				wins.Add(1)
			}
		}(trig)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winning finalize, got %d", wins.Load())
	}
	if sink.count() != 1 {
		t.Fatalf("report submitted %d times, want 1", sink.count())
	}
	if torn.Load() != 1 {
		t.Fatalf("teardown ran %d times, want 1", torn.Load())
	}
}

func TestCoordinatorFinalizeIsNoOpAfterFirst(t *testing.T) {
	exam := testExam(2)
	sink := &fakeSink{}
	coord := newTestCoordinator(exam, nil, sink, nil)

	if !coord.Finalize(model.TriggerManual) {
		t.Fatalf("first finalize lost the claim")
	}
	for i := 0; i < 10; i++ {
		if coord.Finalize(model.TriggerTimeExpired) {
			t.Fatalf("later finalize won the claim")
		}
	}
	if sink.count() != 1 {
		t.Fatalf("report submitted %d times, want 1", sink.count())
	}
}

func TestCoordinatorGradingDeterministic(t *testing.T) {
	exam := testExam(5) // passing marks = 3
	answers := map[int]string{0: "a", 1: "a", 2: "b", 3: "a"} // 3 correct, q4 unanswered

	sink := &fakeSink{}
	coord := newTestCoordinator(exam, answers, sink, nil)
	coord.Finalize(model.TriggerManual)

	report, sinkErr := coord.Result()
	if sinkErr != nil {
		t.Fatalf("unexpected sink error: %v", sinkErr)
	}
	if report.CorrectCount() != 3 {
		t.Fatalf("expected 3 correct, got %d", report.CorrectCount())
	}
	if len(report.WrongIDs) != 2 {
		t.Fatalf("expected 2 wrong (one unanswered), got %d", len(report.WrongIDs))
	}
	if report.Verdict != model.VerdictPass {
		t.Fatalf("expected Pass at the passing-marks boundary, got %v", report.Verdict)
	}

	// Same inputs grade identically.
	again := model.Grade(exam, answers, model.TriggerManual, report.ComputedAt)
	if again.Verdict != report.Verdict || again.CorrectCount() != report.CorrectCount() {
		t.Fatalf("grading is not reproducible")
	}
}

func TestCoordinatorSinkFailureKeepsVerdict(t *testing.T) {
	exam := testExam(2)
	sink := &fakeSink{fail: true}
	coord := newTestCoordinator(exam, map[int]string{0: "a", 1: "a"}, sink, nil)

	coord.Finalize(model.TriggerManual)

	report, sinkErr := coord.Result()
	if report == nil {
		t.Fatalf("report lost on transport failure")
	}
	if sinkErr == nil {
		t.Fatalf("expected sink error to be surfaced")
	}
	if report.Verdict != model.VerdictPass {
		t.Fatalf("verdict must survive transport failure, got %v", report.Verdict)
	}
}

func TestCoordinatorRetrySubmit(t *testing.T) {
	exam := testExam(2)
	sink := &fakeSink{fail: true}
	coord := newTestCoordinator(exam, nil, sink, nil)

	coord.Finalize(model.TriggerTimeExpired)

	if err := coord.RetrySubmit(context.Background()); err == nil {
		t.Fatalf("retry succeeded while sink still failing")
	}

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	if err := coord.RetrySubmit(context.Background()); err != nil {
		t.Fatalf("retry failed after sink recovered: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one stored report after retry, got %d", sink.count())
	}

	// A successful save leaves nothing to retry.
	if err := coord.RetrySubmit(context.Background()); !errors.Is(err, ErrReportSaved) {
		t.Fatalf("expected ErrReportSaved, got %v", err)
	}
}

func TestCoordinatorRetryBeforeFinalize(t *testing.T) {
	coord := newTestCoordinator(testExam(1), nil, &fakeSink{}, nil)
	if err := coord.RetrySubmit(context.Background()); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
}
