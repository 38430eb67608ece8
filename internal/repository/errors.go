package repository

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStateConflict is returned when a conditional update found the row
	// but it was no longer IN_PROGRESS.
	ErrStateConflict = errors.New("session is no longer in progress")
)
