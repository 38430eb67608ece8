package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

const sessionColumns = `id, exam_id, student_id, status, started_at, end_time, submitted_at, score,
	forced_submit, time_expired, tab_switch_count, blur_count, focus_count, copy_paste_attempts,
	last_activity_at, answers`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var answers []byte
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &s.StartedAt, &s.EndTime, &s.SubmittedAt,
		&s.Score, &s.ForcedSubmit, &s.TimeExpired, &s.TabSwitchCount, &s.BlurCount, &s.FocusCount,
		&s.CopyPasteAttempts, &s.LastActivityAt, &answers)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of session %s: %w", s.ID, err)
	}
	return s, nil
}

// CreateIfAbsent inserts s unless a session for (exam_id, student_id) already
// exists. The unique constraint arbitrates concurrent starts; created reports
// whether this call won.
func (r *ExamSessionRepository) CreateIfAbsent(ctx context.Context, s *model.ExamSession) (bool, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return false, err
	}
	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (id, exam_id, student_id, status, started_at, answers)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		 ON CONFLICT (exam_id, student_id) DO NOTHING
		 RETURNING id`,
		s.ID, s.ExamID, s.StudentID, model.SessionStatusInProgress, s.StartedAt, answers,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves a session by its id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetByExamAndStudent retrieves the session for a specific exam-student combination.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = $1 AND student_id = $2`,
		examID, studentID))
}

// Finalize applies f only while the session is IN_PROGRESS. Exactly one of
// several concurrent finalizers succeeds; the rest get ErrStateConflict.
func (r *ExamSessionRepository) Finalize(ctx context.Context, id uuid.UUID, f model.Finalization) error {
	var answers []byte
	if f.Answers != nil {
		var err error
		if answers, err = json.Marshal(f.Answers); err != nil {
			return err
		}
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $2, answers = COALESCE($3::jsonb, answers), score = $4, end_time = $5,
		     submitted_at = $6, forced_submit = $7, time_expired = $8
		 WHERE id = $1 AND status = $9`,
		id, f.Status, answers, f.Score, f.EndTime, f.SubmittedAt, f.ForcedSubmit, f.TimeExpired,
		model.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.missOrConflict(ctx, id)
}

// IncrementCounter bumps one telemetry counter while the session is
// IN_PROGRESS. It reports false when the session is already finalized.
func (r *ExamSessionRepository) IncrementCounter(ctx context.Context, id uuid.UUID, counter model.TelemetryCounter, at time.Time) (bool, error) {
	col, err := CounterColumn(counter)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET `+col+` = `+col+` + 1, last_activity_at = $2
		 WHERE id = $1 AND status = $3`,
		id, at, model.SessionStatusInProgress)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	err = r.missOrConflict(ctx, id)
	if errors.Is(err, ErrStateConflict) {
		return false, nil
	}
	return false, err
}

// ListInProgress returns active sessions with their counters, optionally
// restricted to one exam.
func (r *ExamSessionRepository) ListInProgress(ctx context.Context, examID *uuid.UUID) ([]model.OngoingSession, error) {
	query := `SELECT id, exam_id, student_id, started_at, tab_switch_count, blur_count, focus_count,
	                 copy_paste_attempts, last_activity_at
	          FROM exam_sessions WHERE status = $1`
	args := []any{model.SessionStatusInProgress}
	if examID != nil {
		args = append(args, *examID)
		query += fmt.Sprintf(" AND exam_id = $%d", len(args))
	}
	query += " ORDER BY started_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.OngoingSession{}
	for rows.Next() {
		var o model.OngoingSession
		if err := rows.Scan(&o.SessionID, &o.ExamID, &o.StudentID, &o.StartedAt, &o.TabSwitchCount,
			&o.BlurCount, &o.FocusCount, &o.CopyPasteAttempts, &o.LastActivityAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, o)
	}
	return sessions, rows.Err()
}

func (r *ExamSessionRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM exam_sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStateConflict
}

// CounterColumn guards the column name interpolated into counter updates.
func CounterColumn(c model.TelemetryCounter) (string, error) {
	switch c {
	case model.CounterTabSwitch, model.CounterBlur, model.CounterFocus, model.CounterCopyPaste:
		return string(c), nil
	}
	return "", fmt.Errorf("unknown telemetry counter %q", c)
}
