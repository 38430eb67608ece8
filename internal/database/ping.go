package database

import "context"

// Pinger reports whether a backing store is reachable. *pgxpool.Pool
// satisfies it directly; wrap *sql.DB with PingFunc(db.PingContext).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a ping function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
