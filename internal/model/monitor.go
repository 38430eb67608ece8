package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventKind enumerates messages on the live monitor feed.
type MonitorEventKind string

const (
	MonitorSessionStarted   MonitorEventKind = "session_started"
	MonitorSessionSubmitted MonitorEventKind = "session_submitted"
	MonitorSessionExpired   MonitorEventKind = "session_expired"
	MonitorSessionForced    MonitorEventKind = "session_forced"
	MonitorSessionSuspended MonitorEventKind = "session_suspended"
	MonitorTelemetry        MonitorEventKind = "telemetry"
)

// MonitorEvent is published for every session transition and accepted
// telemetry event.
type MonitorEvent struct {
	Type      MonitorEventKind   `json:"type"`
	ExamID    uuid.UUID          `json:"exam_id"`
	SessionID uuid.UUID          `json:"session_id"`
	StudentID int                `json:"student_id"`
	Status    SessionStatus      `json:"status"`
	Event     TelemetryEventType `json:"event,omitempty"`
	Score     *float64           `json:"score,omitempty"`
	At        time.Time          `json:"at"`
}
