package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusSuspended  SessionStatus = "SUSPENDED"
)

// AnswerState is the per-question record of a session. OptionOrder[i] is the
// canonical option index rendered at display position i; it is written once
// when the session is created.
type AnswerState struct {
	QuestionID           uuid.UUID `json:"question_id"`
	OptionOrder          []int     `json:"option_order"`
	SelectedDisplayIndex *int      `json:"selected_display_index,omitempty"`
	IsCorrect            *bool     `json:"is_correct,omitempty"`
}

// Telemetry holds the anti-cheat counters of a session.
type Telemetry struct {
	TabSwitchCount    int        `json:"tab_switch_count"`
	BlurCount         int        `json:"blur_count"`
	FocusCount        int        `json:"focus_count"`
	CopyPasteAttempts int        `json:"copy_paste_attempts"`
	LastActivityAt    *time.Time `json:"last_activity_at,omitempty"`
}

// ExamSession represents a student's exam attempt.
type ExamSession struct {
	ID           uuid.UUID     `json:"id"`
	ExamID       uuid.UUID     `json:"exam_id"`
	StudentID    int           `json:"student_id"`
	Status       SessionStatus `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	EndTime      *time.Time    `json:"end_time,omitempty"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
	Score        *float64      `json:"score,omitempty"`
	ForcedSubmit bool          `json:"forced_submit"`
	TimeExpired  bool          `json:"time_expired"`
	Telemetry
	Answers []AnswerState `json:"answers"`
}

// InProgress reports whether the session still accepts mutations.
func (s *ExamSession) InProgress() bool {
	return s.Status == SessionStatusInProgress
}

// Finalization is the single write that moves a session out of IN_PROGRESS.
// A nil Answers slice leaves the stored answer states untouched.
type Finalization struct {
	Status       SessionStatus
	Answers      []AnswerState
	Score        *float64
	EndTime      time.Time
	SubmittedAt  *time.Time
	ForcedSubmit bool
	TimeExpired  bool
}

// SubmitRequest is the payload of a student submission. Answers should be an
// object of question id to display index; values may arrive as numbers or
// numeric strings. Other shapes are graded as unanswered.
type SubmitRequest struct {
	Answers json.RawMessage `json:"answers"`
}

// QuestionView is a question as rendered to the student: options are in
// display order and no correctness marker is present.
type QuestionView struct {
	QuestionID   uuid.UUID `json:"question_id"`
	Position     int       `json:"position"`
	QuestionText string    `json:"question_text"`
	Options      []string  `json:"options"`
}

// SessionView is the sanitized exam paper returned by start/resume.
type SessionView struct {
	SessionID        uuid.UUID      `json:"session_id"`
	ExamID           uuid.UUID      `json:"exam_id"`
	Title            string         `json:"title"`
	Subject          string         `json:"subject"`
	DurationMinutes  int            `json:"duration_minutes"`
	StartedAt        time.Time      `json:"started_at"`
	Deadline         time.Time      `json:"deadline"`
	RemainingSeconds int64          `json:"remaining_seconds"`
	Resumed          bool           `json:"resumed"`
	Questions        []QuestionView `json:"questions"`
}

// AnswerResult is the student-visible outcome for one question.
type AnswerResult struct {
	QuestionID           uuid.UUID `json:"question_id"`
	SelectedDisplayIndex *int      `json:"selected_display_index"`
	IsCorrect            bool      `json:"is_correct"`
}

// SessionSummary describes a finalized (or in-flight) session without
// exposing canonical option positions.
type SessionSummary struct {
	SessionID    uuid.UUID      `json:"session_id"`
	ExamID       uuid.UUID      `json:"exam_id"`
	StudentID    int            `json:"student_id"`
	Status       SessionStatus  `json:"status"`
	Score        *float64       `json:"score"`
	StartedAt    time.Time      `json:"started_at"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	SubmittedAt  *time.Time     `json:"submitted_at,omitempty"`
	ForcedSubmit bool           `json:"forced_submit"`
	TimeExpired  bool           `json:"time_expired"`
	Telemetry    Telemetry      `json:"telemetry"`
	Answers      []AnswerResult `json:"answers"`
}

// Summarize builds the client-facing summary of a session.
func (s *ExamSession) Summarize() *SessionSummary {
	sum := &SessionSummary{
		SessionID:    s.ID,
		ExamID:       s.ExamID,
		StudentID:    s.StudentID,
		Status:       s.Status,
		Score:        s.Score,
		StartedAt:    s.StartedAt,
		EndTime:      s.EndTime,
		SubmittedAt:  s.SubmittedAt,
		ForcedSubmit: s.ForcedSubmit,
		TimeExpired:  s.TimeExpired,
		Telemetry:    s.Telemetry,
		Answers:      make([]AnswerResult, 0, len(s.Answers)),
	}
	for _, a := range s.Answers {
		sum.Answers = append(sum.Answers, AnswerResult{
			QuestionID:           a.QuestionID,
			SelectedDisplayIndex: a.SelectedDisplayIndex,
			IsCorrect:            a.IsCorrect != nil && *a.IsCorrect,
		})
	}
	return sum
}

// SessionState is the Time Guard read model.
type SessionState struct {
	SessionID        uuid.UUID     `json:"session_id"`
	Status           SessionStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	Deadline         time.Time     `json:"deadline"`
	RemainingSeconds int64         `json:"remaining_seconds"`
}

// OngoingSession is a row of the administrative monitoring list.
type OngoingSession struct {
	SessionID uuid.UUID `json:"session_id"`
	ExamID    uuid.UUID `json:"exam_id"`
	StudentID int       `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
	Telemetry
}
