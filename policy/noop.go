package policy

import (
	"context"

	"github.com/lodeworks/sluice/types"
)

// NoopPolicy discards every event. Used for stats-only extraction runs
// where the caller wants the session report and metrics but no event
// delivery.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new noop policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// IngestEvents counts and discards the batch.
func (p *NoopPolicy) IngestEvents(_ context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	p.stats.incTotalEvents(int64(len(events)))
	p.stats.incEventsDropped(int64(len(events)))
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlushCount()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error { return nil }

// Stats returns policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
