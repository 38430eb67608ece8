package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionEvent Action = "event"
	ActionPing  Action = "ping"
)

// Request is a client message. Type is only read for ActionEvent.
type Request struct {
	Action Action `json:"action"`
	Type   string `json:"type,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError Event = "error"
	EventAck   Event = "ack"
	EventPong  Event = "pong"
	// EventClosed is sent once the session stops being in progress.
	EventClosed Event = "closed"
)

// AckResponse acknowledges a telemetry event.
type AckResponse struct {
	Event    Event  `json:"event"`
	Type     string `json:"type"`
	Recorded bool   `json:"recorded"`
}

// PongResponse carries the time guard reading.
type PongResponse struct {
	Event            Event  `json:"event"`
	Status           string `json:"status"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
