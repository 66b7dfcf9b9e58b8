// Package policy defines the event delivery policy between the
// extraction engine and the downstream sink.
//
// The engine returns events synchronously; a policy decides how they are
// handed to the sink: immediately (strict), in batches (streaming), or
// not at all (noop, for stats-only runs). Policies never reorder events
// and never alter event contents.
package policy

import (
	"context"
	"sync"

	"github.com/lodeworks/sluice/types"
)

// Policy controls buffering and delivery of extraction events.
//
// Contract:
//   - Events are delivered to the sink in ingestion order
//   - Event shapes are never altered
//   - Policy failure terminates the session
type Policy interface {
	// IngestEvents handles a batch of events from one engine invocation.
	// Return error to terminate the session.
	IngestEvents(ctx context.Context, events []types.Event) error

	// Flush flushes any buffered events.
	// Called at end of stream and on session termination.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns policy statistics for observability.
	// The returned Stats is an atomic snapshot; all counters in it are
	// consistent with each other.
	Stats() Stats
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalEvents is the total number of events received.
	TotalEvents int64
	// EventsDelivered is the number of events written to the sink.
	EventsDelivered int64
	// EventsDropped is the number of events discarded.
	EventsDropped int64
	// BufferSize is the current buffer size in events (if buffered).
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of sink errors encountered.
	Errors int64
}

// statsRecorder is an internal helper for thread-safe stats management.
// Streaming policies touch stats from both the caller and the interval
// flush goroutine.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{}
}

func (r *statsRecorder) incTotalEvents(n int64) {
	r.mu.Lock()
	r.stats.TotalEvents += n
	r.mu.Unlock()
}

func (r *statsRecorder) incEventsDelivered(n int64) {
	r.mu.Lock()
	r.stats.EventsDelivered += n
	r.mu.Unlock()
}

func (r *statsRecorder) incEventsDropped(n int64) {
	r.mu.Lock()
	r.stats.EventsDropped += n
	r.mu.Unlock()
}

func (r *statsRecorder) incFlushCount() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) setBufferSize(n int64) {
	r.mu.Lock()
	r.stats.BufferSize = n
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
