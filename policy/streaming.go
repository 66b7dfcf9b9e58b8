package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lodeworks/sluice/log"
	"github.com/lodeworks/sluice/types"
)

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount triggers a flush after N events accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates a session termination flush.
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrStreamingInvalidConfig is returned when StreamingConfig is invalid.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// StreamingPolicy implements batched delivery with bounded latency.
//
//   - No drops: every event is eventually persisted (same guarantee as strict)
//   - Events accumulate in an in-memory buffer
//   - The buffer is flushed when any configured trigger fires
//   - On flush failure the buffer is preserved and retried on next trigger
//
// Thread safety:
//   - mu guards the buffer and trigger counters
//   - flushMu serializes flush operations to prevent concurrent sink writes
//     from the interval goroutine and the count trigger
type StreamingPolicy struct {
	sink   Sink
	config StreamingConfig
	logger *log.Logger

	mu     sync.Mutex // guards buffer and trigger counters
	buffer []types.Event
	stats  *statsRecorder

	// flushMu serializes flush operations.
	flushMu sync.Mutex

	flushByCount       int64
	flushByInterval    int64
	flushByTermination int64

	// stopCh signals the interval goroutine to stop.
	stopCh chan struct{}
	// stopped indicates Close has been called. Guarded by mu.
	stopped bool
}

// NewStreamingPolicy creates a new streaming policy.
// Returns error if config is invalid.
func NewStreamingPolicy(sink Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}

	p := &StreamingPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]types.Event, 0, 128),
		stats:  newStatsRecorder(),
		stopCh: make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go p.intervalLoop()
	}

	return p, nil
}

// IngestEvents appends the batch to the buffer.
// Never drops events. If the count threshold is reached, triggers a flush.
func (p *StreamingPolicy) IngestEvents(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}

	p.mu.Lock()
	p.stats.incTotalEvents(int64(len(events)))
	p.buffer = append(p.buffer, events...)
	p.stats.setBufferSize(int64(len(p.buffer)))
	shouldFlush := p.config.FlushCount > 0 && len(p.buffer) >= p.config.FlushCount
	p.mu.Unlock()

	if shouldFlush {
		return p.triggerFlush(ctx, FlushTriggerCount)
	}

	return nil
}

// Flush flushes all buffered events (session termination trigger).
// Called at end of stream and on session termination.
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.triggerFlush(ctx, FlushTriggerTermination)
}

// triggerFlush performs a flush with the given trigger reason.
// Serialized by flushMu to prevent concurrent sink writes.
//
// Strategy: swap the buffer under mu, write outside mu, restore on
// failure. Ingestion can keep appending to the fresh buffer during a
// write without blocking on the sink.
func (p *StreamingPolicy) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()

	switch trigger {
	case FlushTriggerCount:
		p.flushByCount++
	case FlushTriggerInterval:
		p.flushByInterval++
	case FlushTriggerTermination:
		p.flushByTermination++
	}

	p.stats.incFlushCount()

	events := p.buffer
	if len(events) == 0 {
		p.mu.Unlock()
		return nil
	}

	// Install a fresh buffer so ingestion can continue during the write
	p.buffer = make([]types.Event, 0, 128)
	p.stats.setBufferSize(0)

	p.mu.Unlock()

	if err := p.sink.WriteEvents(ctx, events); err != nil {
		// Restore: prepend the failed batch before anything ingested since
		p.mu.Lock()
		p.stats.incErrors()
		p.buffer = append(events, p.buffer...)
		p.stats.setBufferSize(int64(len(p.buffer)))
		p.mu.Unlock()
		p.logFlushFailure(trigger, err)
		return err
	}

	p.stats.incEventsDelivered(int64(len(events)))
	p.logFlush(trigger, len(events))

	return nil
}

// Close stops the interval goroutine, flushes, and closes the sink.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StreamingPolicy) Stats() Stats {
	return p.stats.snapshot()
}

// FlushTriggerStats returns per-trigger flush counts for observability.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[FlushTrigger]int64{
		FlushTriggerCount:       p.flushByCount,
		FlushTriggerInterval:    p.flushByInterval,
		FlushTriggerTermination: p.flushByTermination,
	}
}

// intervalLoop runs in a goroutine and triggers flushes on the configured interval.
func (p *StreamingPolicy) intervalLoop() {
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasData := len(p.buffer) > 0
			p.mu.Unlock()

			if hasData {
				// Interval flush failures are retried on the next trigger
				_ = p.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *StreamingPolicy) logFlush(trigger FlushTrigger, events int) {
	if p.logger == nil {
		return
	}
	p.logger.Debug("streaming flush", map[string]any{
		"trigger": string(trigger),
		"events":  events,
		"policy":  "streaming",
	})
}

func (p *StreamingPolicy) logFlushFailure(trigger FlushTrigger, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("streaming flush failed, buffer preserved", map[string]any{
		"trigger": string(trigger),
		"error":   err.Error(),
		"policy":  "streaming",
	})
}
