package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventStore persists telemetry audit rows.
type EventStore interface {
	CopyEvents(ctx context.Context, events []model.TelemetryEvent) (int64, error)
	InsertEvent(ctx context.Context, e model.TelemetryEvent) error
}

// TelemetryWorker drains the telemetry audit queue into the event store in
// batches. Session counters are authoritative; this log is best-effort.
type TelemetryWorker struct {
	store EventStore
	rdb   *redis.Client
	log   zerolog.Logger

	errBackoff     time.Duration
	requeueBackoff time.Duration
}

func NewTelemetryWorker(store EventStore, rdb *redis.Client, log zerolog.Logger) *TelemetryWorker {
	return &TelemetryWorker{
		store:          store,
		rdb:            rdb,
		log:            log.With().Str("component", "telemetry_worker").Logger(),
		errBackoff:     3 * time.Second,
		requeueBackoff: 2 * time.Second,
	}
}

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *TelemetryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("TelemetryWorker started")

	buffer := make([]model.TelemetryEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlushTime = time.Now()
		}

		// 2. Graceful shutdown
		if ctx.Err() != nil {
			w.shutdown(buffer)
			return
		}

		// 3. BLPop blocks for PollTimeout and returns immediately when data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistTelemetryQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if len(buffer) == 0 {
					lastFlushTime = time.Now()
				}
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Dur("backoff", w.errBackoff).Msg("Redis connection error")
			sleepCtx(ctx, w.errBackoff)
			continue
		}

		// 4. Decode
		if len(result) < 2 {
			continue
		}
		var ev model.TelemetryEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil || ev.SessionID == uuid.Nil {
			// Malformed payloads cannot succeed on retry.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed telemetry event")
			continue
		}
		if len(buffer) == 0 {
			lastFlushTime = time.Now()
		}
		buffer = append(buffer, ev)
	}
}

// flushSafe attempts the bulk copy, then row-by-row inserts, then requeue.
func (w *TelemetryWorker) flushSafe(ctx context.Context, batch []model.TelemetryEvent) {
	n, err := w.store.CopyEvents(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("count", n).Msg("Telemetry batch persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk copy failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *TelemetryWorker) fallbackInsert(ctx context.Context, batch []model.TelemetryEvent) {
	var failed []model.TelemetryEvent
	for _, ev := range batch {
		if err := w.store.InsertEvent(ctx, ev); err != nil {
			w.log.Error().Err(err).
				Str("session_id", ev.SessionID.String()).
				Msg("Insert failed, requeueing")
			failed = append(failed, ev)
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *TelemetryWorker) requeue(ctx context.Context, items []model.TelemetryEvent) {
	// The shutdown flush may run after ctx is cancelled; the push must still go out.
	ctx = context.WithoutCancel(ctx)

	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, _ := json.Marshal(ev)
		pipe.RPush(ctx, config.WorkerKey.PersistTelemetryQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue telemetry events. Audit rows lost.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed telemetry events")
	// Avoid thrashing while the store is down.
	time.Sleep(w.requeueBackoff)
}

func (w *TelemetryWorker) shutdown(buffer []model.TelemetryEvent) {
	w.log.Info().Int("pending", len(buffer)).Msg("TelemetryWorker stopping, flushing remaining buffer")
	if len(buffer) == 0 {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
