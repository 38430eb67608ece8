package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/database"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/repository/sqlite"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func push(t *testing.T, rdb *redis.Client, events ...model.TelemetryEvent) {
	t.Helper()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		if err := rdb.RPush(context.Background(), config.WorkerKey.PersistTelemetryQueue, data).Err(); err != nil {
			t.Fatalf("rpush: %v", err)
		}
	}
}

func events(sessionID uuid.UUID, n int) []model.TelemetryEvent {
	out := make([]model.TelemetryEvent, n)
	for i := range out {
		out[i] = model.TelemetryEvent{
			SessionID:  sessionID,
			ExamID:     uuid.New(),
			StudentID:  7,
			Type:       model.EventBlur,
			RecordedAt: time.Date(2026, 5, 1, 10, 0, i, 0, time.UTC),
		}
	}
	return out
}

func run(w *TelemetryWorker) (cancel func()) {
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestTelemetryWorker_PersistsQueuedEvents(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if err := sqlite.EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	store := sqlite.NewSessionEventRepository(db)
	_, rdb := newRedis(t)

	sessionID := uuid.New()
	push(t, rdb, events(sessionID, BatchSize+5)...)
	if err := rdb.RPush(ctx, config.WorkerKey.PersistTelemetryQueue, "{not json").Err(); err != nil {
		t.Fatal(err)
	}

	stop := run(NewTelemetryWorker(store, rdb, zerolog.Nop()))

	deadline := time.Now().Add(10 * time.Second)
	for {
		n, err := store.CountBySession(ctx, sessionID)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == BatchSize+5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("persisted %d events, want %d", n, BatchSize+5)
		}
		time.Sleep(50 * time.Millisecond)
	}
	stop()

	if left, _ := rdb.LLen(ctx, config.WorkerKey.PersistTelemetryQueue).Result(); left != 0 {
		t.Errorf("queue still holds %d items", left)
	}
}

type flakyStore struct {
	mu       sync.Mutex
	copies   int
	inserted []model.TelemetryEvent
	reject   uuid.UUID
}

func (s *flakyStore) CopyEvents(context.Context, []model.TelemetryEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.copies++
	return 0, errors.New("copy unsupported")
}

func (s *flakyStore) InsertEvent(_ context.Context, e model.TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.SessionID == s.reject {
		return errors.New("store unavailable")
	}
	s.inserted = append(s.inserted, e)
	return nil
}

func TestTelemetryWorker_FallbackAndRequeue(t *testing.T) {
	_, rdb := newRedis(t)
	good, bad := uuid.New(), uuid.New()
	store := &flakyStore{reject: bad}

	w := NewTelemetryWorker(store, rdb, zerolog.Nop())
	w.requeueBackoff = 0

	batch := append(events(good, 2), events(bad, 1)...)
	w.flushSafe(context.Background(), batch)

	if store.copies != 1 {
		t.Errorf("copies = %d, want 1", store.copies)
	}
	if len(store.inserted) != 2 {
		t.Errorf("fallback inserted %d rows, want 2", len(store.inserted))
	}

	items, err := rdb.LRange(context.Background(), config.WorkerKey.PersistTelemetryQueue, 0, -1).Result()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("requeued %d items, want 1", len(items))
	}
	var ev model.TelemetryEvent
	if err := json.Unmarshal([]byte(items[0]), &ev); err != nil || ev.SessionID != bad {
		t.Errorf("requeued %+v (err %v)", ev, err)
	}
}

func TestTelemetryWorker_ShutdownFlushesBuffer(t *testing.T) {
	_, rdb := newRedis(t)
	store := &flakyStore{}
	w := NewTelemetryWorker(store, rdb, zerolog.Nop())

	w.shutdown(events(uuid.New(), 3))
	if store.copies != 1 || len(store.inserted) != 3 {
		t.Errorf("copies %d inserted %d", store.copies, len(store.inserted))
	}

	w.shutdown(nil)
	if store.copies != 1 {
		t.Error("empty shutdown touched the store")
	}
}
