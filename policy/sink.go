package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/lodeworks/sluice/types"
)

// Sink abstracts event delivery for policies.
// Implementations may forward across a transport, write to a log, or
// stub for testing.
//
// Methods are batch-oriented to support both strict (batch of 1) and
// streaming policies. Ordering within a batch must be preserved.
type Sink interface {
	// WriteEvents delivers a batch of events.
	// Returns error on failure; the caller decides whether to retry or fail.
	WriteEvents(ctx context.Context, events []types.Event) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without delivering.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	eventsWritten int64
	batches       int64
	closed        bool

	// written stores all written events in order for inspection.
	written []types.Event

	// failNext forces the next WriteEvents call to fail.
	failNext error
}

// StubSinkStats is a snapshot of a StubSink's write counters.
type StubSinkStats struct {
	EventsWritten int64
	Batches       int64
	Closed        bool
}

// NewStubSink creates a stub sink.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteEvents records the batch.
func (s *StubSink) WriteEvents(_ context.Context, events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.eventsWritten += int64(len(events))
	s.batches++
	s.written = append(s.written, events...)
	return nil
}

// Close marks the sink closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailNext forces the next WriteEvents call to return err.
func (s *StubSink) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Stats returns a snapshot of the sink's write counters.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StubSinkStats{
		EventsWritten: s.eventsWritten,
		Batches:       s.batches,
		Closed:        s.closed,
	}
}

// Snapshot returns a copy of the written events.
func (s *StubSink) Snapshot() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.written...)
}

// WriterSink writes events as JSON lines to an io.Writer.
// This is the CLI's stdout delivery path.
type WriterSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewWriterSink creates a sink writing JSON lines to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w, enc: json.NewEncoder(w)}
}

// WriteEvents encodes each event on its own line.
func (s *WriterSink) WriteEvents(_ context.Context, events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range events {
		if err := s.enc.Encode(&events[i]); err != nil {
			return fmt.Errorf("writer sink: encode event: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the writer's lifetime belongs to the caller.
func (s *WriterSink) Close() error { return nil }
