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

// MarkingScheme carries the per-answer score deltas configured on an exam.
type MarkingScheme struct {
	CorrectDelta   float64 `json:"correct_delta"`
	IncorrectDelta float64 `json:"incorrect_delta"`
}

// DefaultMarkingScheme is +1 for a correct answer and nothing otherwise.
var DefaultMarkingScheme = MarkingScheme{CorrectDelta: 1, IncorrectDelta: 0}

// Exam represents an exam definition. Definitions are owned by the exam
// authoring side; the session engine only reads them.
type Exam struct {
	ID                 uuid.UUID     `json:"id"`
	Title              string        `json:"title"`
	Subject            string        `json:"subject"`
	DurationMinutes    int           `json:"duration_minutes"`
	QuestionIDs        []uuid.UUID   `json:"question_ids"`
	RandomizeQuestions bool          `json:"randomize_questions"`
	MarkingScheme      MarkingScheme `json:"marking_scheme"`
	Status             ExamStatus    `json:"status"`
	StartTime          time.Time     `json:"start_time"`
	EndTime            time.Time     `json:"end_time"`
}

// Duration returns the time budget of a single attempt.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// OpenAt reports whether students may start the exam at the given instant.
func (e *Exam) OpenAt(now time.Time) bool {
	if e.Status != ExamStatusPublished {
		return false
	}
	if now.Before(e.StartTime) {
		return false
	}
	return e.EndTime.IsZero() || !now.After(e.EndTime)
}

// ExamBundle is an exam definition together with its questions, in the
// canonical order of Exam.QuestionIDs.
type ExamBundle struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// QuestionByID indexes the bundle's questions.
func (b *ExamBundle) QuestionByID() map[uuid.UUID]*Question {
	idx := make(map[uuid.UUID]*Question, len(b.Questions))
	for i := range b.Questions {
		idx[b.Questions[i].ID] = &b.Questions[i]
	}
	return idx
}
