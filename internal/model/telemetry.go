package model

import (
	"time"

	"github.com/google/uuid"
)

// TelemetryEventType is an anti-cheat signal reported by the browser.
type TelemetryEventType string

const (
	EventVisibilityChange TelemetryEventType = "visibilitychange"
	EventBlur             TelemetryEventType = "blur"
	EventFocus            TelemetryEventType = "focus"
	EventCopy             TelemetryEventType = "copy"
	EventPaste            TelemetryEventType = "paste"
	EventCut              TelemetryEventType = "cut"
)

// TelemetryCounter names a counter column on the session record.
type TelemetryCounter string

const (
	CounterTabSwitch TelemetryCounter = "tab_switch_count"
	CounterBlur      TelemetryCounter = "blur_count"
	CounterFocus     TelemetryCounter = "focus_count"
	CounterCopyPaste TelemetryCounter = "copy_paste_attempts"
)

// Counter maps an event type onto the counter it increments.
func (t TelemetryEventType) Counter() (TelemetryCounter, bool) {
	switch t {
	case EventVisibilityChange:
		return CounterTabSwitch, true
	case EventBlur:
		return CounterBlur, true
	case EventFocus:
		return CounterFocus, true
	case EventCopy, EventPaste, EventCut:
		return CounterCopyPaste, true
	}
	return "", false
}

// RecordEventRequest is the payload for reporting a telemetry event.
type RecordEventRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	Type      string `json:"type" binding:"required,telemetry_event"`
}

// TelemetryEvent is one accepted event, as written to the audit log.
type TelemetryEvent struct {
	SessionID  uuid.UUID          `json:"session_id"`
	ExamID     uuid.UUID          `json:"exam_id"`
	StudentID  int                `json:"student_id"`
	Type       TelemetryEventType `json:"type"`
	RecordedAt time.Time          `json:"recorded_at"`
}
