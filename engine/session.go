package engine

import (
	"time"

	"github.com/lodeworks/sluice/grammar"
)

// session holds all mutable per-request extraction state. One session
// exists per generation request; it is created with the engine and
// discarded with it. Nothing here is shared across requests — there is
// deliberately no package-level state in this package.
type session struct {
	// openID is the id of the currently streaming component, or "".
	openID string
	// openName is the canonical name of the open component, or "".
	openName string
	// openedAt is when the open component started streaming.
	openedAt time.Time

	// carry is the unterminated trailing line awaiting more input.
	carry string
	// acc is the rolling text accumulator for the open component,
	// flushed as one delta at marker boundaries and fragment ends.
	acc []byte

	// nesting tracks brace depth; markers are suppressed above zero.
	nesting grammar.NestingTracker

	startedAt time.Time
	finished  bool
}
