package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository"
)

// BundleCacheTTL bounds how long an exam bundle stays in Redis.
const BundleCacheTTL = 15 * time.Minute

// ExamStore is the exam definition source.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

// QuestionBank is the read-only question source.
type QuestionBank interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
	SampleBySubject(ctx context.Context, subject string, n int) ([]model.Question, error)
}

// ExamCatalog resolves exams with their questions, fronted by an optional
// Redis cache.
type ExamCatalog struct {
	exams     ExamStore
	questions QuestionBank
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewExamCatalog creates a new ExamCatalog. rdb may be nil.
func NewExamCatalog(exams ExamStore, questions QuestionBank, rdb *redis.Client, log zerolog.Logger) *ExamCatalog {
	return &ExamCatalog{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		log:       log.With().Str("component", "exam_catalog").Logger(),
	}
}

// GetBundle returns the exam and its questions in canonical order.
func (c *ExamCatalog) GetBundle(ctx context.Context, examID uuid.UUID) (*model.ExamBundle, error) {
	if c.rdb != nil {
		bundle, err := c.cached(ctx, examID)
		if err == nil {
			return bundle, nil
		}
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Bundle cache read failed, falling back to store")
		}
	}

	bundle, err := c.load(ctx, examID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, bundle)
	return bundle, nil
}

func (c *ExamCatalog) cached(ctx context.Context, examID uuid.UUID) (*model.ExamBundle, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.ExamBundleKey(examID.String())).Bytes()
	if err != nil {
		return nil, err
	}
	var bundle model.ExamBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	return &bundle, nil
}

func (c *ExamCatalog) load(ctx context.Context, examID uuid.UUID) (*model.ExamBundle, error) {
	exam, err := c.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return c.assemble(ctx, exam)
}

func (c *ExamCatalog) assemble(ctx context.Context, exam *model.Exam) (*model.ExamBundle, error) {
	if exam.DurationMinutes <= 0 {
		return nil, fmt.Errorf("exam %s has non-positive duration", exam.ID)
	}
	questions, err := c.questions.GetByIDs(ctx, exam.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}
	if len(questions) != len(exam.QuestionIDs) {
		return nil, fmt.Errorf("exam %s references %d missing questions: %w",
			exam.ID, len(exam.QuestionIDs)-len(questions), ErrNotFound)
	}
	for i := range questions {
		if !questions[i].Valid() {
			return nil, fmt.Errorf("question %s has an invalid answer key", questions[i].ID)
		}
	}
	return &model.ExamBundle{Exam: *exam, Questions: questions}, nil
}

func (c *ExamCatalog) store(ctx context.Context, bundle *model.ExamBundle) {
	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to marshal bundle")
		return
	}
	if err := c.rdb.Set(ctx, config.CacheKey.ExamBundleKey(bundle.Exam.ID.String()), data, BundleCacheTTL).Err(); err != nil {
		c.log.Warn().Err(err).Str("exam_id", bundle.Exam.ID.String()).Msg("Failed to cache bundle")
	}
}

// Invalidate drops the cached bundle of an exam.
func (c *ExamCatalog) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, config.CacheKey.ExamBundleKey(examID.String())).Err()
}

// PrewarmPublished loads every published exam into the cache.
// Failures on individual exams are logged and skipped.
func (c *ExamCatalog) PrewarmPublished(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	exams, err := c.exams.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	c.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		bundle, err := c.assemble(ctx, &exams[i])
		if err != nil {
			c.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		c.store(ctx, bundle)
		warmed++
	}

	c.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// SampleQuestions draws n random questions of a subject from the bank.
// Used when assembling exam definitions, never during a session.
func (c *ExamCatalog) SampleQuestions(ctx context.Context, subject string, n int) ([]model.Question, error) {
	if n <= 0 {
		return []model.Question{}, nil
	}
	return c.questions.SampleBySubject(ctx, subject, n)
}
