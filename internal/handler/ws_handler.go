package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/middleware"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/response"
	"github.com/ibrahim-sultan/examPro/internal/service"
	ws "github.com/ibrahim-sultan/examPro/internal/websocket"
)

// Limiter decides whether a caller may spend one more request.
type Limiter interface {
	Allow(key string) bool
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the student's live channel for telemetry and time pings.
type WSHandler struct {
	sessionService *service.SessionService
	limiter        Limiter
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter may be nil.
func NewWSHandler(sessionService *service.SessionService, limiter Limiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		limiter:        limiter,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream?token=
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		return
	}

	// Ownership is checked before the upgrade so failures are plain HTTP errors.
	state, err := h.sessionService.GetState(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if state.Status != model.SessionStatusInProgress {
		response.Fail(c, http.StatusConflict, response.ErrAlreadyFinalized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID
	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	// The request context is not tied to the hijacked connection.
	ctx := context.WithoutCancel(c.Request.Context())
	limiterKey := "ws:" + strconv.Itoa(studentID)

	for {
		req, err := ws.ReadRequest(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var open bool
		switch req.Action {
		case ws.ActionEvent:
			if h.limiter != nil && !h.limiter.Allow(limiterKey) {
				ws.WriteError(conn, string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
				open = true
				break
			}
			open = h.handleEvent(ctx, conn, wsLog, studentID, sessionID, req.Type)
		case ws.ActionPing:
			open = h.handlePing(ctx, conn, wsLog, studentID, sessionID)
		default:
			wsLog.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
			open = true
		}
		if !open {
			return
		}
	}
}

// handleEvent records one telemetry event. It reports whether the channel
// should stay open.
func (h *WSHandler) handleEvent(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, studentID int, sessionID uuid.UUID, eventType string) bool {
	recorded, err := h.sessionService.RecordEvent(ctx, studentID, sessionID, model.TelemetryEventType(eventType))
	if err != nil {
		_, code := errorStatus(err)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Record event failed")
		}
		ws.WriteError(conn, string(code), response.GetMessage(code))
		return code != response.ErrNotFound && code != response.ErrForbidden
	}

	if err := ws.WriteTyped(conn, ws.AckResponse{Event: ws.EventAck, Type: eventType, Recorded: recorded}); err != nil {
		return false
	}
	if !recorded {
		return h.handlePing(ctx, conn, wsLog, studentID, sessionID)
	}
	return true
}

// handlePing answers with the remaining time, or closes the channel once the
// session is no longer in progress.
func (h *WSHandler) handlePing(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, studentID int, sessionID uuid.UUID) bool {
	state, err := h.sessionService.GetState(ctx, studentID, sessionID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Read session state failed")
		_, code := errorStatus(err)
		ws.WriteError(conn, string(code), response.GetMessage(code))
		return false
	}

	if state.Status != model.SessionStatusInProgress {
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventClosed, Status: string(state.Status)})
		return false
	}

	resp := ws.PongResponse{
		Event:            ws.EventPong,
		Status:           string(state.Status),
		RemainingSeconds: state.RemainingSeconds,
	}
	if err := ws.WriteTyped(conn, resp); err != nil {
		return false
	}
	return true
}
