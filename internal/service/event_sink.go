package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/model"
)

// EventSink receives best-effort side-channel notifications. Implementations
// must not fail the caller.
type EventSink interface {
	Publish(ctx context.Context, ev model.MonitorEvent)
	Audit(ctx context.Context, ev model.TelemetryEvent)
}

// NopEventSink discards everything. Used when Redis is not configured.
type NopEventSink struct{}

func (NopEventSink) Publish(context.Context, model.MonitorEvent) {}
func (NopEventSink) Audit(context.Context, model.TelemetryEvent) {}

// RedisEventSink fans monitor events out over PubSub and queues telemetry
// events for the audit worker.
type RedisEventSink struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventSink creates a new RedisEventSink.
func NewRedisEventSink(rdb *redis.Client, log zerolog.Logger) *RedisEventSink {
	return &RedisEventSink{
		rdb: rdb,
		log: log.With().Str("component", "event_sink").Logger(),
	}
}

// Publish sends ev on the exam's monitor channel.
func (s *RedisEventSink) Publish(ctx context.Context, ev model.MonitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal monitor event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Failed to publish monitor event")
	}
}

// Audit pushes ev onto the telemetry persistence queue.
func (s *RedisEventSink) Audit(ctx context.Context, ev model.TelemetryEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal telemetry event")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistTelemetryQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", ev.SessionID.String()).Msg("Failed to queue telemetry event")
	}
}
