package proctor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/provex/proctor-backend/internal/model"
	"github.com/rs/zerolog"
)

// submitTimeout bounds the report sink call made on the finalize path, which
// runs on whichever monitor goroutine won the claim.
const submitTimeout = 15 * time.Second

// Coordinator is the single funnel every trigger feeds into. The first
// Finalize caller wins an atomic claim; all later calls are no-ops. The
// winning call tears down every monitor, grades the frozen answer set,
// submits the report once, and delivers the result.
type Coordinator struct {
	exam      *model.ExamDefinition
	studentID int
	answers   func() map[int]string // snapshot of the answer set
	teardown  []func()              // stop countdown, stop watchdog, release capture, exit fullscreen
	sink      ReportSink
	log       zerolog.Logger

	claimed atomic.Bool

	mu      sync.Mutex
	report  *model.Report
	sinkErr error
}

// NewCoordinator wires the coordinator. teardown callbacks are invoked in
// order by the winning Finalize call; each must be idempotent.
func NewCoordinator(
	exam *model.ExamDefinition,
	studentID int,
	answers func() map[int]string,
	teardown []func(),
	sink ReportSink,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		exam:      exam,
		studentID: studentID,
		answers:   answers,
		teardown:  teardown,
		sink:      sink,
		log:       log.With().Str("component", "coordinator").Logger(),
	}
}

// Finalize ends the attempt for the given trigger. Returns true only for the
// winning call. The claim is a single compare-and-swap, not a read-then-
// write, because triggers from independent goroutines can arrive together.
func (c *Coordinator) Finalize(trigger model.Trigger) bool {
	if !c.claimed.CompareAndSwap(false, true) {
		return false
	}

	c.log.Info().Str("trigger", string(trigger)).Msg("Finalizing attempt")

	for _, stop := range c.teardown {
		stop()
	}

	report := model.Grade(c.exam, c.answers(), trigger, time.Now())
	report.StudentID = c.studentID

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()
	err := c.sink.SubmitReport(ctx, report)
	if err != nil {
		// The verdict is already computed and is still shown to the
		// candidate; only the server-side record is in doubt. The
		// report is retained for a user-initiated retry.
		c.log.Error().Err(err).Msg("Report sink rejected submission")
	}

	c.mu.Lock()
	c.report = report
	c.sinkErr = err
	c.mu.Unlock()

	c.log.Info().
		Str("verdict", string(report.Verdict)).
		Int("correct", report.CorrectCount()).
		Int("passing_marks", c.exam.PassingMarks).
		Msg("Attempt graded")

	return true
}

// Submitted reports whether the attempt has been finalized.
func (c *Coordinator) Submitted() bool {
	return c.claimed.Load()
}

// Result returns the computed report and the sink error of the original
// submission (or latest retry). Nil report means not finalized yet.
func (c *Coordinator) Result() (*model.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report, c.sinkErr
}

// RetrySubmit resends the already-computed report after a transport failure.
// It never re-enters Finalize and never regrades; it only repeats the sink
// call on explicit candidate action.
func (c *Coordinator) RetrySubmit(ctx context.Context) error {
	c.mu.Lock()
	report := c.report
	sinkErr := c.sinkErr
	c.mu.Unlock()

	if report == nil {
		return ErrNotCompleted
	}
	if sinkErr == nil {
		return ErrReportSaved
	}

	err := c.sink.SubmitReport(ctx, report)

	c.mu.Lock()
	c.sinkErr = err
	c.mu.Unlock()

	if err != nil {
		c.log.Error().Err(err).Msg("Report retry failed")
	} else {
		c.log.Info().Msg("Report retry succeeded")
	}
	return err
}
