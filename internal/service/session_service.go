package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository"
	"github.com/ibrahim-sultan/examPro/internal/scoring"
	"github.com/ibrahim-sultan/examPro/internal/shuffle"
)

// SessionStore persists exam sessions. CreateIfAbsent must be arbitrated by
// the (exam_id, student_id) uniqueness constraint; Finalize and
// IncrementCounter must be conditional on status IN_PROGRESS.
type SessionStore interface {
	CreateIfAbsent(ctx context.Context, s *model.ExamSession) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error)
	Finalize(ctx context.Context, id uuid.UUID, f model.Finalization) error
	IncrementCounter(ctx context.Context, id uuid.UUID, counter model.TelemetryCounter, at time.Time) (bool, error)
	ListInProgress(ctx context.Context, examID *uuid.UUID) ([]model.OngoingSession, error)
}

// BundleSource resolves an exam together with its questions.
type BundleSource interface {
	GetBundle(ctx context.Context, examID uuid.UUID) (*model.ExamBundle, error)
}

// SessionOption customizes a SessionService.
type SessionOption func(*SessionService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// WithEventSink sets the monitor/audit sink.
func WithEventSink(sink EventSink) SessionOption {
	return func(s *SessionService) { s.sink = sink }
}

// WithScoringPolicy sets the scoring policy. Flat is the default.
func WithScoringPolicy(p scoring.Policy) SessionOption {
	return func(s *SessionService) { s.policy = p }
}

// SessionService owns the exam session state machine.
type SessionService struct {
	sessions SessionStore
	catalog  BundleSource
	permuter shuffle.Permuter
	policy   scoring.Policy
	sink     EventSink
	now      func() time.Time
	log      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionStore, catalog BundleSource, permuter shuffle.Permuter, log zerolog.Logger, opts ...SessionOption) *SessionService {
	s := &SessionService{
		sessions: sessions,
		catalog:  catalog,
		permuter: permuter,
		policy:   scoring.Flat{},
		sink:     NopEventSink{},
		now:      time.Now,
		log:      log.With().Str("component", "session_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current instant at the precision every store keeps.
func (s *SessionService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// StartOrResume returns the student's exam paper, creating the session on
// first call. Later calls replay the stored permutations.
func (s *SessionService) StartOrResume(ctx context.Context, studentID int, examID uuid.UUID) (*model.SessionView, error) {
	bundle, err := s.catalog.GetBundle(ctx, examID)
	if err != nil {
		return nil, err
	}
	now := s.clock()

	existing, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
	if err == nil {
		return s.resume(ctx, bundle, existing, now)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	if !bundle.Exam.OpenAt(now) {
		return nil, ErrExamNotAvailable
	}

	session := s.newSession(bundle, studentID, now)
	created, err := s.sessions.CreateIfAbsent(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !created {
		// Lost the race against a concurrent start; serve the winner's layout.
		existing, err := s.sessions.GetByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", err)
		}
		return s.resume(ctx, bundle, existing, now)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Int("questions", len(session.Answers)).
		Msg("Session started")
	s.publish(ctx, model.MonitorSessionStarted, session, "", now)

	return buildView(bundle, session, now, false)
}

func (s *SessionService) resume(ctx context.Context, bundle *model.ExamBundle, sess *model.ExamSession, now time.Time) (*model.SessionView, error) {
	if !sess.InProgress() {
		return nil, ErrAlreadyFinalized
	}
	if now.After(deadline(bundle, sess)) {
		if _, err := s.expire(ctx, bundle, sess, now); err != nil {
			return nil, err
		}
		return nil, ErrTimeExpired
	}
	return buildView(bundle, sess, now, true)
}

// newSession draws the question order (when randomized) and one option order
// per question. These permutations are never regenerated.
func (s *SessionService) newSession(bundle *model.ExamBundle, studentID int, now time.Time) *model.ExamSession {
	n := len(bundle.Questions)
	order := shuffle.Identity(n)
	if bundle.Exam.RandomizeQuestions {
		order = s.permuter.Permutation(n)
	}

	answers := make([]model.AnswerState, n)
	for i, idx := range order {
		q := bundle.Questions[idx]
		answers[i] = model.AnswerState{
			QuestionID:  q.ID,
			OptionOrder: s.permuter.Permutation(len(q.Options)),
		}
	}

	return &model.ExamSession{
		ID:        uuid.New(),
		ExamID:    bundle.Exam.ID,
		StudentID: studentID,
		Status:    model.SessionStatusInProgress,
		StartedAt: now,
		Answers:   answers,
	}
}

// Submit grades the student's display-index selections and finalizes the
// session. Past the deadline the session is finalized without credit and the
// summary is returned together with ErrTimeExpired.
func (s *SessionService) Submit(ctx context.Context, studentID int, sessionID uuid.UUID, selected map[uuid.UUID]int) (*model.SessionSummary, error) {
	sess, err := s.ownedSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.InProgress() {
		return nil, ErrAlreadyFinalized
	}

	bundle, err := s.catalog.GetBundle(ctx, sess.ExamID)
	if err != nil {
		return nil, err
	}
	now := s.clock()

	if now.After(deadline(bundle, sess)) {
		summary, err := s.expire(ctx, bundle, sess, now)
		if err != nil {
			return nil, err
		}
		return summary, ErrTimeExpired
	}

	res := scoring.Grade(sess.Answers, bundle.QuestionByID(), selected, s.policy, bundle.Exam.MarkingScheme)
	f := model.Finalization{
		Status:      model.SessionStatusCompleted,
		Answers:     res.Answers,
		Score:       &res.Score,
		EndTime:     now,
		SubmittedAt: &now,
	}
	if err := s.finalize(ctx, sess, f); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", sess.ExamID.String()).
		Int("student_id", sess.StudentID).
		Float64("score", res.Score).
		Int("correct", res.Correct).
		Msg("Session submitted")
	s.publish(ctx, model.MonitorSessionSubmitted, sess, "", now)

	return sess.Summarize(), nil
}

// expire finalizes an overdue session as a no-credit auto-submission.
func (s *SessionService) expire(ctx context.Context, bundle *model.ExamBundle, sess *model.ExamSession, now time.Time) (*model.SessionSummary, error) {
	res := scoring.Grade(sess.Answers, bundle.QuestionByID(), nil, s.policy, bundle.Exam.MarkingScheme)
	f := model.Finalization{
		Status:      model.SessionStatusCompleted,
		Answers:     res.Answers,
		Score:       &res.Score,
		EndTime:     now,
		SubmittedAt: &now,
		TimeExpired: true,
	}
	if err := s.finalize(ctx, sess, f); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", sess.ExamID.String()).
		Int("student_id", sess.StudentID).
		Dur("overdue", now.Sub(deadline(bundle, sess))).
		Msg("Session expired")
	s.publish(ctx, model.MonitorSessionExpired, sess, "", now)

	return sess.Summarize(), nil
}

// RecordEvent increments the counter matching eventType. Events for
// finalized sessions are accepted without effect; recorded reports whether a
// counter moved.
func (s *SessionService) RecordEvent(ctx context.Context, studentID int, sessionID uuid.UUID, eventType model.TelemetryEventType) (bool, error) {
	counter, ok := eventType.Counter()
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}
	sess, err := s.ownedSession(ctx, studentID, sessionID)
	if err != nil {
		return false, err
	}
	if !sess.InProgress() {
		return false, nil
	}

	now := s.clock()
	recorded, err := s.sessions.IncrementCounter(ctx, sessionID, counter, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("increment %s: %w", counter, err)
	}
	if !recorded {
		return false, nil
	}

	s.publish(ctx, model.MonitorTelemetry, sess, eventType, now)
	s.sink.Audit(ctx, model.TelemetryEvent{
		SessionID:  sess.ID,
		ExamID:     sess.ExamID,
		StudentID:  sess.StudentID,
		Type:       eventType,
		RecordedAt: now,
	})
	return true, nil
}

// ForceSubmit completes an in-progress session on behalf of an administrator.
// The stored answers and score are left untouched.
func (s *SessionService) ForceSubmit(ctx context.Context, sessionID uuid.UUID) (*model.SessionSummary, error) {
	now := s.clock()
	return s.adminTransition(ctx, sessionID, model.MonitorSessionForced, model.Finalization{
		Status:       model.SessionStatusCompleted,
		EndTime:      now,
		SubmittedAt:  &now,
		ForcedSubmit: true,
	})
}

// Suspend moves an in-progress session to SUSPENDED.
func (s *SessionService) Suspend(ctx context.Context, sessionID uuid.UUID) (*model.SessionSummary, error) {
	return s.adminTransition(ctx, sessionID, model.MonitorSessionSuspended, model.Finalization{
		Status:  model.SessionStatusSuspended,
		EndTime: s.clock(),
	})
}

func (s *SessionService) adminTransition(ctx context.Context, sessionID uuid.UUID, kind model.MonitorEventKind, f model.Finalization) (*model.SessionSummary, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.InProgress() {
		return nil, ErrInvalidState
	}
	if err := s.finalize(ctx, sess, f); err != nil {
		// An admin that loses the race to a student submit sees INVALID_STATE,
		// the same answer as for a session that was already final.
		if errors.Is(err, ErrAlreadyFinalized) {
			return nil, ErrInvalidState
		}
		return nil, err
	}

	s.log.Warn().
		Str("session_id", sess.ID.String()).
		Str("exam_id", sess.ExamID.String()).
		Int("student_id", sess.StudentID).
		Str("status", string(f.Status)).
		Msg("Session finalized by administrator")
	s.publish(ctx, kind, sess, "", f.EndTime)

	return sess.Summarize(), nil
}

// ListOngoing returns in-progress sessions with their telemetry counters.
func (s *SessionService) ListOngoing(ctx context.Context, examID *uuid.UUID) ([]model.OngoingSession, error) {
	sessions, err := s.sessions.ListInProgress(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list in-progress sessions: %w", err)
	}
	return sessions, nil
}

// GetState reports the time guard view of a session. It never mutates.
func (s *SessionService) GetState(ctx context.Context, studentID int, sessionID uuid.UUID) (*model.SessionState, error) {
	sess, err := s.ownedSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	bundle, err := s.catalog.GetBundle(ctx, sess.ExamID)
	if err != nil {
		return nil, err
	}
	dl := deadline(bundle, sess)
	state := &model.SessionState{
		SessionID: sess.ID,
		Status:    sess.Status,
		StartedAt: sess.StartedAt,
		Deadline:  dl,
	}
	if sess.InProgress() {
		state.RemainingSeconds = remainingSeconds(dl, s.clock())
	}
	return state, nil
}

// GetResult returns the summary of a session owned by studentID.
func (s *SessionService) GetResult(ctx context.Context, studentID int, sessionID uuid.UUID) (*model.SessionSummary, error) {
	sess, err := s.ownedSession(ctx, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Summarize(), nil
}

// GetResultForAdmin returns the summary of any session.
func (s *SessionService) GetResultForAdmin(ctx context.Context, sessionID uuid.UUID) (*model.SessionSummary, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Summarize(), nil
}

func (s *SessionService) getSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionService) ownedSession(ctx context.Context, studentID int, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.StudentID != studentID {
		return nil, ErrForbidden
	}
	return sess, nil
}

// finalize performs the conditional write and mirrors it onto sess.
func (s *SessionService) finalize(ctx context.Context, sess *model.ExamSession, f model.Finalization) error {
	err := s.sessions.Finalize(ctx, sess.ID, f)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrStateConflict):
		return ErrAlreadyFinalized
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	default:
		return fmt.Errorf("finalize session: %w", err)
	}

	sess.Status = f.Status
	if f.Answers != nil {
		sess.Answers = f.Answers
	}
	sess.Score = f.Score
	end := f.EndTime
	sess.EndTime = &end
	sess.SubmittedAt = f.SubmittedAt
	sess.ForcedSubmit = f.ForcedSubmit
	sess.TimeExpired = f.TimeExpired
	return nil
}

func (s *SessionService) publish(ctx context.Context, kind model.MonitorEventKind, sess *model.ExamSession, ev model.TelemetryEventType, at time.Time) {
	s.sink.Publish(ctx, model.MonitorEvent{
		Type:      kind,
		ExamID:    sess.ExamID,
		SessionID: sess.ID,
		StudentID: sess.StudentID,
		Status:    sess.Status,
		Event:     ev,
		Score:     sess.Score,
		At:        at,
	})
}

func deadline(bundle *model.ExamBundle, sess *model.ExamSession) time.Time {
	return sess.StartedAt.Add(bundle.Exam.Duration())
}

func remainingSeconds(deadline, now time.Time) int64 {
	if !now.Before(deadline) {
		return 0
	}
	return int64(deadline.Sub(now) / time.Second)
}

// buildView renders the stored layout. Options are reordered by the stored
// permutation and no answer key is included.
func buildView(bundle *model.ExamBundle, sess *model.ExamSession, now time.Time, resumed bool) (*model.SessionView, error) {
	byID := bundle.QuestionByID()
	dl := deadline(bundle, sess)

	view := &model.SessionView{
		SessionID:        sess.ID,
		ExamID:           bundle.Exam.ID,
		Title:            bundle.Exam.Title,
		Subject:          bundle.Exam.Subject,
		DurationMinutes:  bundle.Exam.DurationMinutes,
		StartedAt:        sess.StartedAt,
		Deadline:         dl,
		RemainingSeconds: remainingSeconds(dl, now),
		Resumed:          resumed,
		Questions:        make([]model.QuestionView, 0, len(sess.Answers)),
	}
	for i, st := range sess.Answers {
		q, ok := byID[st.QuestionID]
		if !ok {
			return nil, fmt.Errorf("question %s of session %s: %w", st.QuestionID, sess.ID, ErrNotFound)
		}
		if !shuffle.Valid(st.OptionOrder, len(q.Options)) {
			return nil, fmt.Errorf("stored option order of question %s no longer matches the bank", q.ID)
		}
		view.Questions = append(view.Questions, model.QuestionView{
			QuestionID:   q.ID,
			Position:     i + 1,
			QuestionText: q.QuestionText,
			Options:      shuffle.Apply(q.Options, st.OptionOrder),
		})
	}
	return view, nil
}
