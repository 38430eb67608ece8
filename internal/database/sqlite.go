package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	_ "modernc.org/sqlite" // driver: sqlite
)

// NewSQLite opens the embedded single-node store. ":memory:" databases are
// pinned to one connection so every query sees the same schema.
func NewSQLite(ctx context.Context, path string, log zerolog.Logger) (*sql.DB, error) {
	dsn := path
	memory := path == ":memory:"
	if !memory && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	log.Info().Str("path", path).Msg("SQLite opened")
	return db, nil
}
