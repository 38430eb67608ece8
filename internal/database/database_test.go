package database

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
)

func TestPingFunc(t *testing.T) {
	down := errors.New("down")
	var p Pinger = PingFunc(func(context.Context) error { return down })
	if err := p.Ping(context.Background()); !errors.Is(err, down) {
		t.Fatalf("Ping() = %v, want %v", err, down)
	}
}

func TestSQLitePinger(t *testing.T) {
	db, err := NewSQLite(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	if err := PingFunc(db.PingContext).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestNewPostgresPoolRejectsBadURL(t *testing.T) {
	cfg := &config.Config{DatabaseURL: "postgres://%zz", MaxDBConns: 4}
	if _, err := NewPostgresPool(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a malformed database URL")
	}
}
