// Package store opens the configured persistence backend and exposes it
// through the interfaces the services consume.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/database"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository"
	"github.com/ibrahim-sultan/examPro/internal/repository/sqlite"
	"github.com/ibrahim-sultan/examPro/internal/service"
	"github.com/ibrahim-sultan/examPro/internal/worker"
)

// ExamRepository reads and authors exam definitions.
type ExamRepository interface {
	service.ExamStore
	Create(ctx context.Context, e *model.Exam) error
}

// QuestionRepository reads and authors question bank entries.
type QuestionRepository interface {
	service.QuestionBank
	Create(ctx context.Context, q *model.Question) error
}

// Set bundles the repositories of one backend.
type Set struct {
	Driver    string
	Sessions  service.SessionStore
	Exams     ExamRepository
	Questions QuestionRepository
	Events    worker.EventStore
	Health    database.Pinger
	close     func()
}

// Close releases the underlying connections.
func (s *Set) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the backend selected by cfg.StoreDriver. The Postgres
// schema is managed by cmd/migrate; the sqlite schema is created on open.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Set, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &Set{
			Driver:    cfg.StoreDriver,
			Sessions:  repository.NewExamSessionRepository(pool),
			Exams:     repository.NewExamRepository(pool),
			Questions: repository.NewQuestionRepository(pool),
			Events:    repository.NewSessionEventRepository(pool),
			Health:    pool,
			close:     pool.Close,
		}, nil

	case config.StoreDriverSQLite:
		db, err := database.NewSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		if err := sqlite.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		return &Set{
			Driver:    cfg.StoreDriver,
			Sessions:  sqlite.NewExamSessionRepository(db),
			Exams:     sqlite.NewExamRepository(db),
			Questions: sqlite.NewQuestionRepository(db),
			Events:    sqlite.NewSessionEventRepository(db),
			Health:    database.PingFunc(db.PingContext),
			close:     func() { db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
