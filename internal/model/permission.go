package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionSessionsMonitor allows viewing in-progress sessions and the live feed.
	PermissionSessionsMonitor Permission = "sessions:monitor"

	// PermissionSessionsControl allows force-submitting and suspending sessions.
	PermissionSessionsControl Permission = "sessions:control"
)
