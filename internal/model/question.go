package model

import (
	"github.com/google/uuid"
)

// Question represents a single exam question. CorrectOption is never sent
// to the candidate; only the grading path reads it.
type Question struct {
	ID            uuid.UUID         `json:"id"`
	ExamID        uuid.UUID         `json:"exam_id"`
	Prompt        string            `json:"prompt"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correct_option"`
	OrderNum      int               `json:"order_num"`
}

// QuestionForCandidate is a question with the correct answer stripped.
type QuestionForCandidate struct {
	ID       uuid.UUID         `json:"id"`
	Prompt   string            `json:"prompt"`
	Options  map[string]string `json:"options"`
	OrderNum int               `json:"order_num"`
}

// ForCandidate strips the correct option from a question.
func (q *Question) ForCandidate() QuestionForCandidate {
	return QuestionForCandidate{
		ID:       q.ID,
		Prompt:   q.Prompt,
		Options:  q.Options,
		OrderNum: q.OrderNum,
	}
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Prompt        string            `json:"prompt" binding:"required,min=1,max=2000"`
	Options       map[string]string `json:"options" binding:"required,min=2"`
	CorrectOption string            `json:"correct_option" binding:"required,max=10"`
	OrderNum      int               `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}
