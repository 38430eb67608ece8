package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

// SessionEventRepository writes the telemetry audit log.
type SessionEventRepository struct {
	pool *pgxpool.Pool
}

// NewSessionEventRepository creates a new SessionEventRepository.
func NewSessionEventRepository(pool *pgxpool.Pool) *SessionEventRepository {
	return &SessionEventRepository{pool: pool}
}

// CopyEvents bulk-inserts events using the COPY protocol.
func (r *SessionEventRepository) CopyEvents(ctx context.Context, events []model.TelemetryEvent) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"session_events"},
		[]string{"session_id", "exam_id", "student_id", "event_type", "recorded_at"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.SessionID, e.ExamID, e.StudentID, string(e.Type), e.RecordedAt}, nil
		}),
	)
}

// InsertEvent writes a single event.
func (r *SessionEventRepository) InsertEvent(ctx context.Context, e model.TelemetryEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_events (session_id, exam_id, student_id, event_type, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.SessionID, e.ExamID, e.StudentID, string(e.Type), e.RecordedAt)
	return err
}

// CountBySession returns the number of audited events for a session.
func (r *SessionEventRepository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM session_events WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}
