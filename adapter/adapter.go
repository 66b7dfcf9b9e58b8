// Package adapter defines the notification boundary for finished sessions.
//
// Adapters publish session completion notifications to downstream systems.
// The runtime owns adapter lifecycle; users provide configuration only.
package adapter

import "context"

// SessionCompletedEvent is the payload published when a session finishes.
type SessionCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "session_completed"
	SessionID       string `json:"session_id"`
	RequestID       string `json:"request_id,omitempty"`
	Outcome         string `json:"outcome"` // success, parse_error_threshold, stream_error, canceled, delivery_failure
	Timestamp       string `json:"timestamp"` // ISO 8601
	DurationMs      int64  `json:"duration_ms"`
	EventCount      int64  `json:"event_count"`

	// Component totals for quick downstream triage.
	Components         int      `json:"components"`
	ComponentsComplete int      `json:"components_complete"`
	MissingCritical    []string `json:"missing_critical,omitempty"`
	Truncations        int64    `json:"truncations"`
	Evictions          int64    `json:"evictions"`
}

// Adapter publishes session completion events to a downstream system.
// Implementations must be safe for single-use per session.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
