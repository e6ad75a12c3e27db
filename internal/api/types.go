package api

import "github.com/mattjoyce/hwcd/internal/display"

// PerformRequest is the JSON body for POST /display/perform.
type PerformRequest struct {
	// Operation is a tag name such as "force_refresh_rate".
	Operation string `json:"operation"`
	Value     uint32 `json:"value"`
}

// PerformResponse is returned once an operation was dispatched.
type PerformResponse struct {
	Operation string           `json:"operation"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Display   display.Snapshot `json:"display"`
}

// RefreshResponse is returned by POST /display/refresh.
type RefreshResponse struct {
	Result      string `json:"result"`
	RefreshRate uint32 `json:"refresh_rate"`
}

// SecureRequest is the JSON body for PUT /display/secure.
type SecureRequest struct {
	Active bool `json:"active"`
}

// PausedRequest is the JSON body for PUT /display/paused.
type PausedRequest struct {
	Paused bool `json:"paused"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	SessionID     string `json:"session_id"`
	RefreshRate   uint32 `json:"refresh_rate"`
	DroppedEvents int64  `json:"dropped_events"`
}
