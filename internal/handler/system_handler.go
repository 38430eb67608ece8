package handler

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/database"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports process and dependency health.
type SystemHandler struct {
	store     database.Pinger
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(store database.Pinger, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		store:     store,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Store      string `json:"store"`
	Redis      string `json:"redis"`
	Goroutines int    `json:"goroutines"`
	// QueueTelemetry is the backlog of audit events awaiting persistence.
	QueueTelemetry int64 `json:"queue_telemetry"`
}

// Health godoc
// GET /health
// 200 when the store answers, 503 otherwise. Redis is reported but optional.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(h.startTime)),
		Store:      "up",
		Redis:      "disabled",
		Goroutines: runtime.NumGoroutine(),
	}

	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Store ping failed")
		report.Store = "down"
		report.Status = "degraded"
	}

	if h.rdb != nil {
		pipe := h.rdb.Pipeline()
		pingCmd := pipe.Ping(ctx)
		queueCmd := pipe.LLen(ctx, config.WorkerKey.PersistTelemetryQueue)
		_, _ = pipe.Exec(ctx)
		if pingCmd.Err() != nil {
			report.Redis = "down"
		} else {
			report.Redis = "up"
			report.QueueTelemetry, _ = queueCmd.Result()
		}
	}

	status := http.StatusOK
	if report.Store != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d / (24 * time.Hour))
	if days == 0 {
		return d.String()
	}
	return strconv.Itoa(days) + "d" + (d - time.Duration(days)*24*time.Hour).String()
}
