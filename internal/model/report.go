package model

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the Pass/Fail outcome of a graded attempt.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Trigger identifies which supervision signal ended an attempt.
type Trigger string

const (
	TriggerManual      Trigger = "MANUAL_SUBMIT"
	TriggerTimeExpired Trigger = "TIME_EXPIRED"
	TriggerForceSubmit Trigger = "FORCE_SUBMIT"
	TriggerAbsence     Trigger = "ABSENCE_CONFIRMED"
)

// Report is the write-once grading result of a finished attempt. It is
// produced exactly once by the submission coordinator.
type Report struct {
	ExamID       uuid.UUID   `json:"exam_id"`
	StudentID    int         `json:"student_id"`
	CorrectIDs   []uuid.UUID `json:"correct_ids"`
	WrongIDs     []uuid.UUID `json:"wrong_ids"`
	Verdict      Verdict     `json:"verdict"`
	Trigger      Trigger     `json:"trigger"`
	PassingMarks int         `json:"passing_marks"`
	ComputedAt   time.Time   `json:"computed_at"`
}

// CorrectCount returns the number of correctly answered questions.
func (r *Report) CorrectCount() int {
	return len(r.CorrectIDs)
}

// Grade compares an answer set against an exam's questions and produces the
// report. A question is correct only if the selected option key equals the
// correct key; unanswered questions count as wrong. The verdict is Pass iff
// the correct count reaches the exam's passing marks.
func Grade(exam *ExamDefinition, answers map[int]string, trigger Trigger, now time.Time) *Report {
	report := &Report{
		ExamID:       exam.ID,
		CorrectIDs:   make([]uuid.UUID, 0, len(exam.Questions)),
		WrongIDs:     make([]uuid.UUID, 0, len(exam.Questions)),
		Trigger:      trigger,
		PassingMarks: exam.PassingMarks,
		ComputedAt:   now,
	}

	for i, q := range exam.Questions {
		if selected, ok := answers[i]; ok && selected == q.CorrectOption {
			report.CorrectIDs = append(report.CorrectIDs, q.ID)
		} else {
			report.WrongIDs = append(report.WrongIDs, q.ID)
		}
	}

	if report.CorrectCount() >= exam.PassingMarks {
		report.Verdict = VerdictPass
	} else {
		report.Verdict = VerdictFail
	}

	return report
}
