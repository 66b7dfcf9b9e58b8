package policy

import (
	"context"

	"github.com/lodeworks/sluice/types"
)

// StrictPolicy implements synchronous, unbuffered delivery.
//
//   - No buffering: each batch is written immediately
//   - No drops: every event reaches the sink
//   - Backpressure: the caller blocks on sink latency
//   - Sink errors fail the session
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// IngestEvents writes the batch immediately to the sink.
// Returns error on sink failure (terminates session).
func (p *StrictPolicy) IngestEvents(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	p.stats.incTotalEvents(int64(len(events)))

	if err := p.sink.WriteEvents(ctx, events); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incEventsDelivered(int64(len(events)))
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlushCount()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
