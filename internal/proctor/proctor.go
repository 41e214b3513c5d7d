// Package proctor implements the proctored exam session controller: a state
// machine that supervises a single candidate's attempt from instructions
// through final grading while independent monitors (countdown timer,
// integrity watchdog, presence monitor) race to end it. Whichever trigger
// fires first wins an atomic claim in the submission coordinator; grading and
// report submission happen exactly once, and every monitor and acquired
// resource is released on every exit path.
package proctor

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/provex/proctor-backend/internal/model"
)

// Session lifecycle errors.
var (
	// ErrOutOfWindow means the attempt was started outside the exam's
	// availability window. Fatal to starting.
	ErrOutOfWindow = errors.New("exam is not currently available")

	// ErrAlreadyStarted means Begin was called twice. Phase transitions
	// are forward-only.
	ErrAlreadyStarted = errors.New("attempt already started")

	// ErrNotInProgress means the operation requires an in-progress attempt.
	ErrNotInProgress = errors.New("attempt is not in progress")

	// ErrNotCompleted means the operation requires a completed attempt.
	ErrNotCompleted = errors.New("attempt is not completed")

	// ErrReportSaved means there is no failed report submission to retry.
	ErrReportSaved = errors.New("report already saved")
)

// ContentSource supplies exam definitions and records that an attempt was
// opened. MarkAttempted must be idempotent per exam+candidate.
type ContentSource interface {
	FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error)
	MarkAttempted(ctx context.Context, examID uuid.UUID, studentID int) error
}

// ReportSink receives the write-once report of a finished attempt. The core
// never retries a rejected submission on its own; failure is surfaced to the
// candidate with a manual retry affordance.
type ReportSink interface {
	SubmitReport(ctx context.Context, report *model.Report) error
}

// Events is implemented by the transport layer (the exam WebSocket) to relay
// supervision outcomes to the candidate. Implementations must not block.
type Events interface {
	// OnWarning surfaces an integrity warning modal. count is the current
	// violation count.
	OnWarning(count int)
	// OnAbsenceConfirmed tells the candidate sustained absence ended the
	// attempt.
	OnAbsenceConfirmed()
	// OnExitFullscreen asks the client to leave mandatory fullscreen mode
	// during teardown.
	OnExitFullscreen()
	// OnResult delivers the computed report. sinkErr is non-nil when the
	// report sink rejected the submission; the verdict is still valid.
	OnResult(report *model.Report, sinkErr error)
}

// NopEvents is an Events implementation that discards everything.
type NopEvents struct{}

func (NopEvents) OnWarning(int)                 {}
func (NopEvents) OnAbsenceConfirmed()           {}
func (NopEvents) OnExitFullscreen()             {}
func (NopEvents) OnResult(*model.Report, error) {}
