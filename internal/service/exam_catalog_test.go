package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository"
)

type stubExams struct {
	exams map[uuid.UUID]model.Exam
	calls atomic.Int32
}

func (s *stubExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	s.calls.Add(1)
	e, ok := s.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *stubExams) ListPublished(context.Context) ([]model.Exam, error) {
	var out []model.Exam
	for _, e := range s.exams {
		if e.Status == model.ExamStatusPublished {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubBank struct {
	questions map[uuid.UUID]model.Question
}

func (s *stubBank) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *stubBank) SampleBySubject(_ context.Context, subject string, n int) ([]model.Question, error) {
	var out []model.Question
	for _, q := range s.questions {
		if q.Subject == subject && len(out) < n {
			out = append(out, q)
		}
	}
	return out, nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func catalogFixture(status model.ExamStatus, questions int, missing bool) (*stubExams, *stubBank, model.Exam) {
	bank := &stubBank{questions: map[uuid.UUID]model.Question{}}
	exam := model.Exam{
		ID:              uuid.New(),
		Title:           "Biology",
		Subject:         "biology",
		DurationMinutes: 45,
		Status:          status,
		StartTime:       time.Now().Add(-time.Hour),
	}
	for i := 0; i < questions; i++ {
		q := model.Question{ID: uuid.New(), Subject: "biology", Options: []string{"a", "b"}, CorrectOption: i % 2}
		bank.questions[q.ID] = q
		exam.QuestionIDs = append(exam.QuestionIDs, q.ID)
	}
	if missing {
		exam.QuestionIDs = append(exam.QuestionIDs, uuid.New())
	}
	return &stubExams{exams: map[uuid.UUID]model.Exam{exam.ID: exam}}, bank, exam
}

func TestExamCatalog_CachesBundle(t *testing.T) {
	mr, rdb := newRedis(t)
	exams, bank, exam := catalogFixture(model.ExamStatusPublished, 3, false)
	c := NewExamCatalog(exams, bank, rdb, zerolog.Nop())
	ctx := context.Background()

	first, err := c.GetBundle(ctx, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Questions) != 3 || first.Questions[0].ID != exam.QuestionIDs[0] {
		t.Fatalf("bundle = %+v", first)
	}
	if !mr.Exists(config.CacheKey.ExamBundleKey(exam.ID.String())) {
		t.Fatal("bundle was not cached")
	}

	second, err := c.GetBundle(ctx, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if exams.calls.Load() != 1 {
		t.Fatalf("store hit %d times, want 1", exams.calls.Load())
	}
	if second.Questions[2].CorrectOption != first.Questions[2].CorrectOption {
		t.Fatal("cached bundle differs")
	}

	if err := c.Invalidate(ctx, exam.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetBundle(ctx, exam.ID); err != nil {
		t.Fatal(err)
	}
	if exams.calls.Load() != 2 {
		t.Fatalf("store hit %d times after invalidate, want 2", exams.calls.Load())
	}
}

func TestExamCatalog_CorruptCacheSelfHeals(t *testing.T) {
	mr, rdb := newRedis(t)
	exams, bank, exam := catalogFixture(model.ExamStatusPublished, 1, false)
	c := NewExamCatalog(exams, bank, rdb, zerolog.Nop())

	if err := mr.Set(config.CacheKey.ExamBundleKey(exam.ID.String()), "{not json"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetBundle(context.Background(), exam.ID); err != nil {
		t.Fatalf("GetBundle with corrupt cache: %v", err)
	}
	if exams.calls.Load() != 1 {
		t.Fatal("store should have been consulted")
	}
}

func TestExamCatalog_Errors(t *testing.T) {
	exams, bank, exam := catalogFixture(model.ExamStatusPublished, 2, true)
	c := NewExamCatalog(exams, bank, nil, zerolog.Nop())
	ctx := context.Background()

	if _, err := c.GetBundle(ctx, exam.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing question err = %v", err)
	}
	if _, err := c.GetBundle(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing exam err = %v", err)
	}
}

func TestExamCatalog_PrewarmPublished(t *testing.T) {
	mr, rdb := newRedis(t)
	exams, bank, published := catalogFixture(model.ExamStatusPublished, 2, false)
	draft := published
	draft.ID = uuid.New()
	draft.Status = model.ExamStatusDraft
	exams.exams[draft.ID] = draft

	c := NewExamCatalog(exams, bank, rdb, zerolog.Nop())
	if err := c.PrewarmPublished(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(config.CacheKey.ExamBundleKey(published.ID.String())) {
		t.Fatal("published exam not warmed")
	}
	if mr.Exists(config.CacheKey.ExamBundleKey(draft.ID.String())) {
		t.Fatal("draft exam should not be warmed")
	}
	if ttl := mr.TTL(config.CacheKey.ExamBundleKey(published.ID.String())); ttl != BundleCacheTTL {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestExamCatalog_SampleQuestions(t *testing.T) {
	exams, bank, _ := catalogFixture(model.ExamStatusPublished, 5, false)
	c := NewExamCatalog(exams, bank, nil, zerolog.Nop())
	got, err := c.SampleQuestions(context.Background(), "biology", 3)
	if err != nil || len(got) != 3 {
		t.Fatalf("sample = %d, %v", len(got), err)
	}
	got, err = c.SampleQuestions(context.Background(), "biology", 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty sample = %d, %v", len(got), err)
	}
}
