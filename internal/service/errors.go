package service

import "errors"

// Domain errors returned by the session engine.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("caller does not own this session")
	ErrAlreadyFinalized = errors.New("session is already finalized")
	ErrInvalidState     = errors.New("session is not in progress")
	ErrTimeExpired      = errors.New("session time budget has expired")
	ErrExamNotAvailable = errors.New("exam is not open for new attempts")
	ErrUnknownEvent     = errors.New("unknown telemetry event type")
)
