package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/middleware"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/response"
	"github.com/ibrahim-sultan/examPro/internal/scoring"
	"github.com/ibrahim-sultan/examPro/internal/service"
	"github.com/ibrahim-sultan/examPro/internal/validator"
)

// SessionHandler handles the student side of an exam attempt.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/results/start/:exam_id
// Creates the student's session or resumes the existing one.
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, ok := paramUUID(c, "exam_id")
	if !ok {
		return
	}

	view, err := h.sessionService.StartOrResume(c.Request.Context(), claims.UserID, examID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, gin.H{"session": view})
}

// Submit godoc
// POST /api/v1/results/submit/:session_id
// Body: {"answers": {"<question_id>": <display_index>}}
func (h *SessionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		return
	}

	var req model.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("Unreadable submit body")
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	summary, err := h.sessionService.Submit(c.Request.Context(), claims.UserID, sessionID, scoring.ParseAnswers(req.Answers))
	if err != nil {
		if errors.Is(err, service.ErrTimeExpired) && summary != nil {
			response.FailWithData(c, http.StatusGone, response.ErrTimeExpired, gin.H{"summary": summary})
			return
		}
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// GetResult godoc
// GET /api/v1/results/:session_id
func (h *SessionHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		return
	}

	summary, err := h.sessionService.GetResult(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// GetState godoc
// GET /api/v1/results/:session_id/state
// Returns remaining time without touching the session.
func (h *SessionHandler) GetState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := paramUUID(c, "session_id")
	if !ok {
		return
	}

	state, err := h.sessionService.GetState(c.Request.Context(), claims.UserID, sessionID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// RecordEvent godoc
// POST /api/v1/monitor/events
// Body: {"session_id": "...", "type": "visibilitychange"}
func (h *SessionHandler) RecordEvent(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.RecordEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	recorded, err := h.sessionService.RecordEvent(c.Request.Context(), claims.UserID, sessionID, model.TelemetryEventType(req.Type))
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"recorded": recorded})
}
