package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository"
)

const examColumns = `id, title, subject, duration_minutes, randomize_questions,
	correct_delta, incorrect_delta, status, start_time, end_time`

// ExamRepository reads and seeds exam definitions.
type ExamRepository struct {
	db *sql.DB
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(db *sql.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	e := &model.Exam{}
	var start int64
	var end sql.NullInt64
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.DurationMinutes, &e.RandomizeQuestions,
		&e.MarkingScheme.CorrectDelta, &e.MarkingScheme.IncorrectDelta, &e.Status, &start, &end)
	if err != nil {
		return nil, err
	}
	e.StartTime = fromUnix(start)
	if t := fromNullUnix(end); t != nil {
		e.EndTime = *t
	}
	return e, nil
}

// GetByID retrieves an exam together with its ordered question ids.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := scanExam(r.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if e.QuestionIDs, err = r.questionIDs(ctx, id); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ExamRepository) questionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT question_id FROM exam_questions WHERE exam_id = ? ORDER BY position`, examID)
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
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = ? ORDER BY start_time`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		exams = append(exams, *e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range exams {
		if exams[i].QuestionIDs, err = r.questionIDs(ctx, exams[i].ID); err != nil {
			return nil, err
		}
	}
	return exams, nil
}

// Create inserts an exam and its ordered question list.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	end := toNullUnix(&e.EndTime)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exams (`+examColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Subject, e.DurationMinutes, e.RandomizeQuestions,
		e.MarkingScheme.CorrectDelta, e.MarkingScheme.IncorrectDelta, e.Status, toUnix(e.StartTime), end,
	); err != nil {
		return err
	}
	for i, qid := range e.QuestionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exam_questions (exam_id, question_id, position) VALUES (?, ?, ?)`, e.ID, qid, i,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QuestionRepository is the read side of the question bank.
type QuestionRepository struct {
	db *sql.DB
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(db *sql.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

func collectQuestions(rows *sql.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options string
		if err := rows.Scan(&q.ID, &q.Subject, &q.QuestionText, &options, &q.CorrectOption); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByIDs returns the questions for ids in the order requested.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return []model.Question{}, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject, question_text, options, correct_option
		 FROM questions WHERE id IN (`+string(placeholders)+`)`, args...)
	if err != nil {
		return nil, err
	}
	found, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}
	return repository.OrderByIDs(found, ids), nil
}

// SampleBySubject draws up to n random questions of a subject.
func (r *QuestionRepository) SampleBySubject(ctx context.Context, subject string, n int) ([]model.Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, subject, question_text, options, correct_option
		 FROM questions WHERE subject = ? ORDER BY random() LIMIT ?`, subject, n)
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
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO questions (id, subject, question_text, options, correct_option) VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.Subject, q.QuestionText, string(options), q.CorrectOption)
	return err
}
