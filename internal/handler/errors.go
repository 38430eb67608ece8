package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ibrahim-sultan/examPro/internal/response"
	"github.com/ibrahim-sultan/examPro/internal/service"
)

// errorStatus maps a service error onto its HTTP status and API code.
// Anything unrecognised is reported as an internal error.
func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrAlreadyFinalized):
		return http.StatusConflict, response.ErrAlreadyFinalized
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict, response.ErrInvalidState
	case errors.Is(err, service.ErrTimeExpired):
		return http.StatusGone, response.ErrTimeExpired
	case errors.Is(err, service.ErrExamNotAvailable):
		return http.StatusUnprocessableEntity, response.ErrExamNotAvailable
	case errors.Is(err, service.ErrUnknownEvent):
		return http.StatusBadRequest, response.ErrValidation
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failFromError writes the error envelope for err. Internal errors are logged
// and never echoed to the client.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := errorStatus(err)
	if code == response.ErrInternal {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", c.GetString(response.ContextKeyRequestID)).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// paramUUID parses a uuid path parameter, answering 400 when it is malformed.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
