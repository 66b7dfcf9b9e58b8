package grammar

import "strings"

// NestingTracker counts open brace depth across the lines of a stream.
//
// Marker recognition is suppressed while depth is above zero so that a
// code body which itself prints or comments marker-shaped text is never
// mistaken for a structural boundary. This is a brace-counting heuristic,
// not a lexer: braces inside string literals and comments still count.
// Generated component bodies close their braces in practice, so the
// tracker converges back to zero at real component boundaries.
type NestingTracker struct {
	level int
}

// Update adjusts the depth by the braces found in line.
// The depth is clamped at zero; stray closing braces on malformed input
// can never push it negative.
func (t *NestingTracker) Update(line string) {
	t.level += strings.Count(line, "{")
	t.level -= strings.Count(line, "}")
	if t.level < 0 {
		t.level = 0
	}
}

// Level returns the current depth.
func (t *NestingTracker) Level() int { return t.level }

// Reset returns the tracker to depth zero.
func (t *NestingTracker) Reset() { t.level = 0 }
