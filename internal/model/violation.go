package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind enumerates the integrity signals counted by the watchdog.
type ViolationKind string

const (
	ViolationTabHidden      ViolationKind = "TAB_HIDDEN"
	ViolationFullscreenExit ViolationKind = "FULLSCREEN_EXIT"
)

// Qualifies reports whether the kind is a recognized watchdog signal.
func (k ViolationKind) Qualifies() bool {
	return k == ViolationTabHidden || k == ViolationFullscreenExit
}

// Violation is the persisted audit record of a single integrity event.
// EventID is the client-generated identifier the watchdog deduplicates on.
type Violation struct {
	ID         int64         `json:"id"`
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	EventID    string        `json:"event_id"`
	Kind       ViolationKind `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
	RecordedAt time.Time     `json:"recorded_at"`
}
