// Package types defines the shared data model for the sluice extraction
// runtime: components, stream events, and the fragment envelope wire format.
package types

import (
	"strings"
	"time"
)

// Position is the placement category of a component within the generated page.
type Position string

// Position constants. The zero value is not valid; markers that omit the
// position attribute default to PositionMain.
const (
	PositionHeader Position = "header"
	PositionMain   Position = "main"
	PositionFooter Position = "footer"
)

// ParsePosition parses a position string. Returns PositionMain for the
// empty string (the grammar default) and false for unknown values.
func ParsePosition(s string) (Position, bool) {
	switch s {
	case "":
		return PositionMain, true
	case string(PositionHeader):
		return PositionHeader, true
	case string(PositionMain):
		return PositionMain, true
	case string(PositionFooter):
		return PositionFooter, true
	default:
		return "", false
	}
}

// Component is one named span of generated code recovered from the stream.
//
// Identity is ID, derived deterministically from the canonical name via
// ComponentID. At most one component per session has IsStreaming=true.
type Component struct {
	// ID is the deterministic identifier, lower-cased canonical name.
	ID string `json:"id"`
	// CanonicalName is the alias-resolved component name.
	CanonicalName string `json:"canonical_name"`
	// Position is the placement category from the START marker.
	Position Position `json:"position"`
	// Code is the accumulated body, bounded by the store's byte ceiling.
	Code []byte `json:"code"`
	// IsComplete is true once the component has been closed.
	IsComplete bool `json:"is_complete"`
	// IsStreaming is true while the component is the open component.
	IsStreaming bool `json:"is_streaming"`
	// CreatedAt is the time the component was first opened.
	CreatedAt time.Time `json:"created_at"`
	// LastModifiedAt is updated on every mutation.
	LastModifiedAt time.Time `json:"last_modified_at"`
	// SizeBytes is the current size of Code.
	SizeBytes int `json:"size_bytes"`
	// ValidationErrors lists missing compound sub-patterns, in registry order.
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// ComponentID derives the component identity from a canonical name.
func ComponentID(canonicalName string) string {
	return strings.ToLower(canonicalName)
}

// criticalNames is the set of canonical names whose absence should be
// surfaced prominently to the consumer. Purely informational; membership
// never alters extraction control flow.
var criticalNames = map[string]struct{}{
	"NavigationHeader": {},
	"AppLayout":        {},
	"HeroSection":      {},
	"Footer":           {},
}

// IsCriticalName reports whether a canonical name is in the critical set.
func IsCriticalName(canonicalName string) bool {
	_, ok := criticalNames[canonicalName]
	return ok
}

// CriticalNames returns the critical set as a sorted-order-independent copy.
func CriticalNames() []string {
	names := make([]string, 0, len(criticalNames))
	for name := range criticalNames {
		names = append(names, name)
	}
	return names
}
