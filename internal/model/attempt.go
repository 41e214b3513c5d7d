package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptPhase enumerates the forward-only phases of a proctored attempt.
type AttemptPhase string

const (
	PhaseInstructions AttemptPhase = "INSTRUCTIONS"
	PhaseInProgress   AttemptPhase = "IN_PROGRESS"
	PhaseCompleted    AttemptPhase = "COMPLETED"
)

// Attempt represents one candidate's single pass through one exam.
// A row is created idempotently when the candidate enters InProgress.
type Attempt struct {
	ID             uuid.UUID    `json:"id"`
	ExamID         uuid.UUID    `json:"exam_id"`
	StudentID      int          `json:"student_id"`
	Phase          AttemptPhase `json:"phase"`
	StartedAt      time.Time    `json:"started_at"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	ViolationCount int          `json:"violation_count"`
	EndTrigger     *string      `json:"end_trigger,omitempty"`
	CorrectCount   *int         `json:"correct_count,omitempty"`
	Verdict        *Verdict     `json:"verdict,omitempty"`
}

// AttemptState is the candidate-facing snapshot used to restore an exam
// screen after a reconnect: autosaved answers plus remaining seconds.
type AttemptState struct {
	ExamID           uuid.UUID         `json:"exam_id"`
	StudentID        int               `json:"student_id"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
}
