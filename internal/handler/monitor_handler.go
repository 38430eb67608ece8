package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/response"
	"github.com/ibrahim-sultan/examPro/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler serves the administrative monitoring and control endpoints.
type MonitorHandler struct {
	rdb            *redis.Client
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. rdb may be nil, in which
// case the live stream falls back to periodic snapshots.
func NewMonitorHandler(rdb *redis.Client, sessionService *service.SessionService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		sessionService: sessionService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ListOngoing godoc
// GET /api/v1/monitor/ongoing?exam_id=
func (h *MonitorHandler) ListOngoing(c *gin.Context) {
	var examID *uuid.UUID
	if raw := c.Query("exam_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		examID = &id
	}

	sessions, err := h.sessionService.ListOngoing(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if sessions == nil {
		sessions = []model.OngoingSession{}
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// ForceSubmit godoc
// POST /api/v1/monitor/force-submit/:session_id
func (h *MonitorHandler) ForceSubmit(c *gin.Context) {
	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		return
	}

	summary, err := h.sessionService.ForceSubmit(c.Request.Context(), sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// Suspend godoc
// POST /api/v1/monitor/suspend/:session_id
func (h *MonitorHandler) Suspend(c *gin.Context) {
	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		return
	}

	summary, err := h.sessionService.Suspend(c.Request.Context(), sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// GetResult godoc
// GET /api/v1/monitor/results/:session_id
func (h *MonitorHandler) GetResult(c *gin.Context) {
	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		return
	}

	summary, err := h.sessionService.GetResultForAdmin(c.Request.Context(), sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// StreamExam godoc
// GET /api/v1/monitor/exams/:exam_id/stream
// Server-sent events: an initial snapshot of in-progress sessions, then every
// event published for the exam, with periodic refreshes and pings.
func (h *MonitorHandler) StreamExam(c *gin.Context) {
	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	if err := h.sendSnapshot(c, reqCtx, examID, "snapshot"); err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Initial monitor snapshot failed")
		return
	}

	var ch <-chan *redis.Message
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
		defer pubsub.Close()
		ch = pubsub.Channel()
	}

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Published payloads are already JSON; forward them untouched.
			writeSSEData(c, []byte(msg.Payload))

		case <-refreshTicker.C:
			if err := h.sendSnapshot(c, reqCtx, examID, "refresh"); err != nil {
				h.log.Warn().Err(err).Msg("Failed to refresh ongoing sessions")
			}

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, examID uuid.UUID, kind string) error {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	sessions, err := h.sessionService.ListOngoing(ctx, &examID)
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []model.OngoingSession{}
	}

	payload, err := json.Marshal(gin.H{
		"type":     kind,
		"exam_id":  examID,
		"sessions": sessions,
	})
	if err != nil {
		return err
	}
	writeSSEData(c, payload)
	return nil
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
