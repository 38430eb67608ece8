// Package scoring maps display indices chosen by a student back to canonical
// option indices and computes the session score.
package scoring

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

// Outcome classifies a single graded question.
type Outcome int

const (
	Unanswered Outcome = iota
	Correct
	Incorrect
)

// Policy turns per-question outcomes into points.
type Policy interface {
	Name() string
	Points(o Outcome, scheme model.MarkingScheme) float64
}

// Flat awards one point per correct answer and nothing otherwise.
type Flat struct{}

func (Flat) Name() string { return "flat" }

func (Flat) Points(o Outcome, _ model.MarkingScheme) float64 {
	if o == Correct {
		return 1
	}
	return 0
}

// Weighted applies the exam's marking scheme. Unanswered questions score zero.
type Weighted struct{}

func (Weighted) Name() string { return "weighted" }

func (Weighted) Points(o Outcome, scheme model.MarkingScheme) float64 {
	switch o {
	case Correct:
		return scheme.CorrectDelta
	case Incorrect:
		return scheme.IncorrectDelta
	}
	return 0
}

// ForName resolves a policy by its configuration name.
func ForName(name string) (Policy, error) {
	switch name {
	case "", "flat":
		return Flat{}, nil
	case "weighted":
		return Weighted{}, nil
	}
	return nil, fmt.Errorf("unknown scoring policy %q", name)
}

// Reconcile resolves display index d against the stored option order. It
// returns the canonical index and false when d is out of range.
func Reconcile(optionOrder []int, d int) (int, bool) {
	if d < 0 || d >= len(optionOrder) {
		return 0, false
	}
	return optionOrder[d], true
}

// Result is the outcome of grading a whole session.
type Result struct {
	Answers []model.AnswerState
	Score   float64
	Correct int
}

// Grade scores selected (question id to display index) against the session's
// stored answer states. States are returned in their stored order with
// SelectedDisplayIndex and IsCorrect filled in. Questions missing from the
// bank, absent selections and out-of-range indices count as unanswered.
func Grade(states []model.AnswerState, questions map[uuid.UUID]*model.Question, selected map[uuid.UUID]int, policy Policy, scheme model.MarkingScheme) Result {
	res := Result{Answers: make([]model.AnswerState, len(states))}
	for i, st := range states {
		graded := model.AnswerState{
			QuestionID:  st.QuestionID,
			OptionOrder: append([]int(nil), st.OptionOrder...),
		}
		outcome := Unanswered
		q, known := questions[st.QuestionID]
		if d, ok := selected[st.QuestionID]; ok && known {
			if canonical, inRange := Reconcile(st.OptionOrder, d); inRange {
				graded.SelectedDisplayIndex = &d
				if canonical == q.CorrectOption {
					outcome = Correct
				} else {
					outcome = Incorrect
				}
			}
		}
		isCorrect := outcome == Correct
		graded.IsCorrect = &isCorrect
		if isCorrect {
			res.Correct++
		}
		res.Score += policy.Points(outcome, scheme)
		res.Answers[i] = graded
	}
	return res
}
