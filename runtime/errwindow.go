package runtime

import "time"

// ErrorWindow counts recoverable parse errors over a rolling time window.
// Exceeding the threshold does not destroy session state; the caller
// decides whether to abort the transport.
type ErrorWindow struct {
	window time.Duration
	max    int
	times  []time.Time
}

// NewErrorWindow creates a window that trips after max errors within the
// given duration. max <= 0 disables tripping entirely.
func NewErrorWindow(max int, window time.Duration) *ErrorWindow {
	return &ErrorWindow{window: window, max: max}
}

// Record registers an error at time t and reports whether the threshold
// has been reached.
func (w *ErrorWindow) Record(t time.Time) bool {
	if w.max <= 0 {
		return false
	}

	cutoff := t.Add(-w.window)
	kept := w.times[:0]
	for _, ts := range w.times {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.times = append(kept, t)

	return len(w.times) >= w.max
}

// Count returns the number of errors currently inside the window,
// evaluated against the most recent recorded error.
func (w *ErrorWindow) Count() int {
	return len(w.times)
}
