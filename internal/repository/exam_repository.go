package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

const examColumns = `id, title, subject, duration_minutes, randomize_questions,
	correct_delta, incorrect_delta, status, start_time, end_time`

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	var endTime *time.Time
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.DurationMinutes, &e.RandomizeQuestions,
		&e.MarkingScheme.CorrectDelta, &e.MarkingScheme.IncorrectDelta, &e.Status, &e.StartTime, &endTime)
	if err != nil {
		return nil, err
	}
	if endTime != nil {
		e.EndTime = *endTime
	}
	return e, nil
}

// GetByID retrieves an exam by its UUID together with its ordered question ids.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	ids, err := r.questionIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	e.QuestionIDs = ids
	return e, nil
}

func (r *ExamRepository) questionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM exam_questions WHERE exam_id = $1 ORDER BY position`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = $1 ORDER BY start_time`,
		model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range exams {
		ids, err := r.questionIDs(ctx, exams[i].ID)
		if err != nil {
			return nil, err
		}
		exams[i].QuestionIDs = ids
	}
	return exams, nil
}

// Create inserts an exam and its ordered question list in one transaction.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var endTime *time.Time
	if !e.EndTime.IsZero() {
		endTime = &e.EndTime
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO exams (`+examColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Title, e.Subject, e.DurationMinutes, e.RandomizeQuestions,
		e.MarkingScheme.CorrectDelta, e.MarkingScheme.IncorrectDelta, e.Status, e.StartTime, endTime)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, qid := range e.QuestionIDs {
		batch.Queue(`INSERT INTO exam_questions (exam_id, question_id, position) VALUES ($1, $2, $3)`, e.ID, qid, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
