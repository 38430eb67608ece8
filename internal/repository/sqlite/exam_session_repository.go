package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository"
)

const sessionColumns = `id, exam_id, student_id, status, started_at, end_time, submitted_at, score,
	forced_submit, time_expired, tab_switch_count, blur_count, focus_count, copy_paste_attempts,
	last_activity_at, answers`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	db *sql.DB
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(db *sql.DB) *ExamSessionRepository {
	return &ExamSessionRepository{db: db}
}

func scanSession(row rowScanner) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var started int64
	var end, submitted, lastActivity sql.NullInt64
	var score sql.NullFloat64
	var answers string
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.Status, &started, &end, &submitted,
		&score, &s.ForcedSubmit, &s.TimeExpired, &s.TabSwitchCount, &s.BlurCount, &s.FocusCount,
		&s.CopyPasteAttempts, &lastActivity, &answers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	s.StartedAt = fromUnix(started)
	s.EndTime = fromNullUnix(end)
	s.SubmittedAt = fromNullUnix(submitted)
	s.LastActivityAt = fromNullUnix(lastActivity)
	if score.Valid {
		s.Score = &score.Float64
	}
	if err := json.Unmarshal([]byte(answers), &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of session %s: %w", s.ID, err)
	}
	return s, nil
}

// CreateIfAbsent inserts s unless a session for (exam_id, student_id) exists.
func (r *ExamSessionRepository) CreateIfAbsent(ctx context.Context, s *model.ExamSession) (bool, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	answers, err := json.Marshal(s.Answers)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO exam_sessions (id, exam_id, student_id, status, started_at, answers)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (exam_id, student_id) DO NOTHING`,
		s.ID, s.ExamID, s.StudentID, model.SessionStatusInProgress, toUnix(s.StartedAt), string(answers))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetByID retrieves a session by its id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = ?`, id))
}

// GetByExamAndStudent retrieves the session for an exam-student pair.
func (r *ExamSessionRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	return scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE exam_id = ? AND student_id = ?`, examID, studentID))
}

// Finalize applies f only while the session is IN_PROGRESS.
func (r *ExamSessionRepository) Finalize(ctx context.Context, id uuid.UUID, f model.Finalization) error {
	var answers sql.NullString
	if f.Answers != nil {
		b, err := json.Marshal(f.Answers)
		if err != nil {
			return err
		}
		answers = sql.NullString{String: string(b), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE exam_sessions
		 SET status = ?, answers = COALESCE(?, answers), score = ?, end_time = ?,
		     submitted_at = ?, forced_submit = ?, time_expired = ?
		 WHERE id = ? AND status = ?`,
		f.Status, answers, f.Score, toUnix(f.EndTime), toNullUnix(f.SubmittedAt), f.ForcedSubmit, f.TimeExpired,
		id, model.SessionStatusInProgress)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}
	return r.missOrConflict(ctx, id)
}

// IncrementCounter bumps one telemetry counter while the session is IN_PROGRESS.
func (r *ExamSessionRepository) IncrementCounter(ctx context.Context, id uuid.UUID, counter model.TelemetryCounter, at time.Time) (bool, error) {
	col, err := repository.CounterColumn(counter)
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE exam_sessions SET `+col+` = `+col+` + 1, last_activity_at = ?
		 WHERE id = ? AND status = ?`,
		toUnix(at), id, model.SessionStatusInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	err = r.missOrConflict(ctx, id)
	if errors.Is(err, repository.ErrStateConflict) {
		return false, nil
	}
	return false, err
}

// ListInProgress returns active sessions, optionally restricted to one exam.
func (r *ExamSessionRepository) ListInProgress(ctx context.Context, examID *uuid.UUID) ([]model.OngoingSession, error) {
	query := `SELECT id, exam_id, student_id, started_at, tab_switch_count, blur_count, focus_count,
	                 copy_paste_attempts, last_activity_at
	          FROM exam_sessions WHERE status = ?`
	args := []any{model.SessionStatusInProgress}
	if examID != nil {
		query += " AND exam_id = ?"
		args = append(args, *examID)
	}
	query += " ORDER BY started_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []model.OngoingSession{}
	for rows.Next() {
		var o model.OngoingSession
		var started int64
		var lastActivity sql.NullInt64
		if err := rows.Scan(&o.SessionID, &o.ExamID, &o.StudentID, &started, &o.TabSwitchCount,
			&o.BlurCount, &o.FocusCount, &o.CopyPasteAttempts, &lastActivity); err != nil {
			return nil, err
		}
		o.StartedAt = fromUnix(started)
		o.LastActivityAt = fromNullUnix(lastActivity)
		sessions = append(sessions, o)
	}
	return sessions, rows.Err()
}

func (r *ExamSessionRepository) missOrConflict(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM exam_sessions WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrStateConflict
}

// SessionEventRepository writes the telemetry audit log.
type SessionEventRepository struct {
	db *sql.DB
}

// NewSessionEventRepository creates a new SessionEventRepository.
func NewSessionEventRepository(db *sql.DB) *SessionEventRepository {
	return &SessionEventRepository{db: db}
}

// CopyEvents inserts events in one transaction.
func (r *SessionEventRepository) CopyEvents(ctx context.Context, events []model.TelemetryEvent) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO session_events (session_id, exam_id, student_id, event_type, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.SessionID, e.ExamID, e.StudentID, string(e.Type), toUnix(e.RecordedAt)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

// InsertEvent writes a single event.
func (r *SessionEventRepository) InsertEvent(ctx context.Context, e model.TelemetryEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, exam_id, student_id, event_type, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.ExamID, e.StudentID, string(e.Type), toUnix(e.RecordedAt))
	return err
}

// CountBySession returns the number of audited events for a session.
func (r *SessionEventRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_events WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
