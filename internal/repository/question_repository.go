package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

// QuestionRepository is the read side of the question bank.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Subject, &q.QuestionText, &q.Options, &q.CorrectOption); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByIDs returns the questions for ids in the order requested. Unknown ids
// are omitted; callers compare lengths to detect them.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return []model.Question{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject, question_text, options, correct_option
		 FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	found, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}
	return OrderByIDs(found, ids), nil
}

// SampleBySubject draws up to n random questions of a subject.
func (r *QuestionRepository) SampleBySubject(ctx context.Context, subject string, n int) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, subject, question_text, options, correct_option
		 FROM questions WHERE subject = $1
		 ORDER BY random() LIMIT $2`, subject, n)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// Create inserts a question into the bank.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO questions (id, subject, question_text, options, correct_option)
		 VALUES ($1, $2, $3, $4, $5)`,
		q.ID, q.Subject, q.QuestionText, q.Options, q.CorrectOption)
	return err
}

// OrderByIDs arranges found to follow ids, skipping ids with no match.
func OrderByIDs(found []model.Question, ids []uuid.UUID) []model.Question {
	byID := make(map[uuid.UUID]model.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out
}
