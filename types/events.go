package types

// EventType discriminates stream events emitted by the extraction engine.
type EventType string

// Event type constants. Names match the client-facing SSE vocabulary.
const (
	EventTypeStart EventType = "content_block_start"
	EventTypeDelta EventType = "content_block_delta"
	EventTypeStop  EventType = "content_block_stop"
	EventTypeError EventType = "error"
)

// ErrorCode classifies error events.
type ErrorCode string

// Error code constants.
const (
	// ErrorCodeParse indicates a malformed envelope around a fragment.
	ErrorCodeParse ErrorCode = "PARSE_ERROR"
	// ErrorCodeParseThreshold indicates too many parse errors within the
	// rolling time window.
	ErrorCodeParseThreshold ErrorCode = "PARSE_ERROR_THRESHOLD"
	// ErrorCodeCompoundTimeout indicates the advisory compound wait budget
	// elapsed while sub-patterns were still missing.
	ErrorCodeCompoundTimeout ErrorCode = "COMPOUND_TIMEOUT"
	// ErrorCodeStream indicates an upstream transport failure.
	ErrorCodeStream ErrorCode = "STREAM_ERROR"
)

// Event is the tagged union carried from the engine to the consumer.
// Exactly one Type is set; the populated fields depend on it.
//
// Ordering guarantee: a stop for component X is preceded by exactly one
// start for X with no intervening start/stop for X.
type Event struct {
	Type EventType `json:"type"`

	// Component identity, set on start/delta/stop.
	ComponentID   string   `json:"component_id,omitempty"`
	ComponentName string   `json:"component_name,omitempty"`
	Position      Position `json:"position,omitempty"`

	// Text is the delta payload. Concatenating the Text of all deltas
	// between a start and its stop reproduces the component body exactly,
	// marker lines excluded, absent truncation.
	Text string `json:"text,omitempty"`

	// Completion flags, set on start/stop.
	IsComplete         bool `json:"is_complete"`
	IsCompoundComplete bool `json:"is_compound_complete"`
	IsCritical         bool `json:"is_critical"`

	// Error payload, set on error events only.
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// StartEvent builds a content_block_start event for a component.
// compoundComplete reflects the validator's verdict over the code
// accumulated so far (trivially true for non-compound names).
func StartEvent(c *Component, compoundComplete bool) Event {
	return Event{
		Type:               EventTypeStart,
		ComponentID:        c.ID,
		ComponentName:      c.CanonicalName,
		Position:           c.Position,
		IsCompoundComplete: compoundComplete,
		IsCritical:         IsCriticalName(c.CanonicalName),
	}
}

// DeltaEvent builds a content_block_delta event carrying text.
func DeltaEvent(c *Component, text string) Event {
	return Event{
		Type:          EventTypeDelta,
		ComponentID:   c.ID,
		ComponentName: c.CanonicalName,
		Position:      c.Position,
		Text:          text,
	}
}

// StopEvent builds a content_block_stop event.
func StopEvent(c *Component, compoundComplete bool) Event {
	return Event{
		Type:               EventTypeStop,
		ComponentID:        c.ID,
		ComponentName:      c.CanonicalName,
		Position:           c.Position,
		IsComplete:         c.IsComplete,
		IsCompoundComplete: compoundComplete,
		IsCritical:         IsCriticalName(c.CanonicalName),
	}
}

// ErrorEvent builds an error event.
func ErrorEvent(code ErrorCode, message string) Event {
	return Event{
		Type:    EventTypeError,
		Code:    code,
		Message: message,
	}
}
