package model

import (
	"github.com/google/uuid"
)

// Question is an immutable multiple-choice record from the question bank.
// CorrectOption indexes Options in canonical order.
type Question struct {
	ID            uuid.UUID `json:"id"`
	Subject       string    `json:"subject"`
	QuestionText  string    `json:"question_text"`
	Options       []string  `json:"options"`
	CorrectOption int       `json:"correct_option"`
}

// Valid reports whether the record satisfies the bank's invariants.
func (q *Question) Valid() bool {
	return len(q.Options) >= 2 && q.CorrectOption >= 0 && q.CorrectOption < len(q.Options)
}
