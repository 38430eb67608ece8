// Package sqlite is the embedded single-node store. It mirrors the pgx
// repositories so the service layer can run without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"time"
)

// Timestamps are stored as unix nanoseconds; JSON documents as TEXT.
const schema = `
CREATE TABLE IF NOT EXISTS exams (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    subject             TEXT NOT NULL,
    duration_minutes    INTEGER NOT NULL CHECK (duration_minutes > 0),
    randomize_questions INTEGER NOT NULL DEFAULT 0,
    correct_delta       REAL NOT NULL DEFAULT 1,
    incorrect_delta     REAL NOT NULL DEFAULT 0,
    status              TEXT NOT NULL DEFAULT 'DRAFT',
    start_time          INTEGER NOT NULL,
    end_time            INTEGER
);

CREATE TABLE IF NOT EXISTS questions (
    id             TEXT PRIMARY KEY,
    subject        TEXT NOT NULL,
    question_text  TEXT NOT NULL,
    options        TEXT NOT NULL,
    correct_option INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions (subject);

CREATE TABLE IF NOT EXISTS exam_questions (
    exam_id     TEXT NOT NULL,
    question_id TEXT NOT NULL,
    position    INTEGER NOT NULL,
    PRIMARY KEY (exam_id, question_id)
);

CREATE TABLE IF NOT EXISTS exam_sessions (
    id                  TEXT PRIMARY KEY,
    exam_id             TEXT NOT NULL,
    student_id          INTEGER NOT NULL,
    status              TEXT NOT NULL,
    started_at          INTEGER NOT NULL,
    end_time            INTEGER,
    submitted_at        INTEGER,
    score               REAL,
    forced_submit       INTEGER NOT NULL DEFAULT 0,
    time_expired        INTEGER NOT NULL DEFAULT 0,
    tab_switch_count    INTEGER NOT NULL DEFAULT 0,
    blur_count          INTEGER NOT NULL DEFAULT 0,
    focus_count         INTEGER NOT NULL DEFAULT 0,
    copy_paste_attempts INTEGER NOT NULL DEFAULT 0,
    last_activity_at    INTEGER,
    answers             TEXT NOT NULL DEFAULT '[]',
    UNIQUE (exam_id, student_id)
);

CREATE TABLE IF NOT EXISTS session_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id  TEXT NOT NULL,
    exam_id     TEXT NOT NULL,
    student_id  INTEGER NOT NULL,
    event_type  TEXT NOT NULL,
    recorded_at INTEGER NOT NULL
);
`

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}
