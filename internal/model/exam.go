package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// ExamDefinition is the immutable definition of a proctored exam. It is
// fetched once per attempt and never mutated by the session controller.
type ExamDefinition struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	DurationSeconds int        `json:"duration_seconds"`
	TotalMarks      int        `json:"total_marks"`
	PassingMarks    int        `json:"passing_marks"`
	StartWindow     *time.Time `json:"start_window,omitempty"`
	EndWindow       *time.Time `json:"end_window,omitempty"`
	Status          ExamStatus `json:"status"`
	Questions       []Question `json:"questions,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// InWindow reports whether the given instant falls inside the exam's
// availability window. A nil bound is open-ended on that side.
func (e *ExamDefinition) InWindow(now time.Time) bool {
	if e.StartWindow != nil && now.Before(*e.StartWindow) {
		return false
	}
	if e.EndWindow != nil && now.After(*e.EndWindow) {
		return false
	}
	return true
}

// Duration returns the exam's time budget as a time.Duration.
func (e *ExamDefinition) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title           string     `json:"title" binding:"required,min=3,max=255"`
	DurationSeconds int        `json:"duration_seconds" binding:"required,min=60,max=28800"`
	TotalMarks      int        `json:"total_marks" binding:"required,min=1"`
	PassingMarks    int        `json:"passing_marks" binding:"required,min=0"`
	StartWindow     *time.Time `json:"start_window" binding:"omitempty"`
	EndWindow       *time.Time `json:"end_window" binding:"omitempty,gtfield=StartWindow"`
}

// UpdateExamRequest is the payload for updating an existing exam.
type UpdateExamRequest struct {
	Title           string     `json:"title" binding:"omitempty,min=3,max=255"`
	DurationSeconds int        `json:"duration_seconds" binding:"omitempty,min=60,max=28800"`
	TotalMarks      *int       `json:"total_marks" binding:"omitempty"`
	PassingMarks    *int       `json:"passing_marks" binding:"omitempty"`
	StartWindow     *time.Time `json:"start_window" binding:"omitempty"`
	EndWindow       *time.Time `json:"end_window" binding:"omitempty,gtfield=StartWindow"`
}

// ExamPayload is the Redis-cached payload sent to candidates. Correct
// options are stripped; the answer key lives in a separate cache entry.
type ExamPayload struct {
	ExamID          uuid.UUID              `json:"exam_id"`
	Title           string                 `json:"title"`
	DurationSeconds int                    `json:"duration_seconds"`
	TotalMarks      int                    `json:"total_marks"`
	PassingMarks    int                    `json:"passing_marks"`
	StartWindow     *time.Time             `json:"start_window,omitempty"`
	EndWindow       *time.Time             `json:"end_window,omitempty"`
	Questions       []QuestionForCandidate `json:"questions"`
}
