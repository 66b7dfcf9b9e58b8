// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single extraction session.
// It is a leaf package with no internal dependencies. Delivery-policy
// metrics are absorbed from policy stats at session completion rather
// than recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Stream consumption
	FragmentsConsumed int64
	BytesConsumed     int64
	LinesProcessed    int64

	// Marker recognition
	MarkersStarted    int64
	MarkersCompleted  int64
	MarkersRejected   int64
	MarkersSuppressed int64

	// Event emission
	DeltasEmitted int64

	// Store pressure
	Truncations int64
	Evictions   int64

	// Transport envelope
	EnvelopeDecodeErrors int64
	SequenceViolations   int64

	// Compound validation
	CompoundIncomplete int64
	CompoundTimeouts   int64

	// Delivery (absorbed from policy stats at session completion)
	EventsDelivered int64
	EventsDropped   int64

	// Dimensions (informational, set at construction)
	SessionID string
	Policy    string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	fragmentsConsumed int64
	bytesConsumed     int64
	linesProcessed    int64

	markersStarted    int64
	markersCompleted  int64
	markersRejected   int64
	markersSuppressed int64

	deltasEmitted int64

	truncations int64
	evictions   int64

	envelopeDecodeErrors int64
	sequenceViolations   int64

	compoundIncomplete int64
	compoundTimeouts   int64

	// Delivery (set once via AbsorbDeliveryStats)
	eventsDelivered int64
	eventsDropped   int64

	// Dimensions
	sessionID string
	policy    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(sessionID, policy string) *Collector {
	return &Collector{
		sessionID: sessionID,
		policy:    policy,
	}
}

// AddFragment records one consumed fragment of n bytes.
func (c *Collector) AddFragment(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.fragmentsConsumed++
	c.bytesConsumed += int64(n)
	c.mu.Unlock()
}

// IncLineProcessed records one processed line.
func (c *Collector) IncLineProcessed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.linesProcessed++
	c.mu.Unlock()
}

// IncMarkerStarted records an accepted START marker.
func (c *Collector) IncMarkerStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.markersStarted++
	c.mu.Unlock()
}

// IncMarkerCompleted records an accepted END marker.
func (c *Collector) IncMarkerCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.markersCompleted++
	c.mu.Unlock()
}

// IncMarkerRejected records a malformed marker or mismatched END that
// degraded to plain text.
func (c *Collector) IncMarkerRejected() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.markersRejected++
	c.mu.Unlock()
}

// IncMarkerSuppressed records a marker-shaped line ignored because brace
// nesting was above zero.
func (c *Collector) IncMarkerSuppressed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.markersSuppressed++
	c.mu.Unlock()
}

// IncDeltaEmitted records one emitted delta event.
func (c *Collector) IncDeltaEmitted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.deltasEmitted++
	c.mu.Unlock()
}

// SetStorePressure records the store's truncation and eviction counters.
func (c *Collector) SetStorePressure(truncations, evictions int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.truncations = truncations
	c.evictions = evictions
	c.mu.Unlock()
}

// IncEnvelopeDecodeError records a fragment envelope decode failure.
func (c *Collector) IncEnvelopeDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.envelopeDecodeErrors++
	c.mu.Unlock()
}

// IncSequenceViolation records a fragment sequence number violation.
func (c *Collector) IncSequenceViolation() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sequenceViolations++
	c.mu.Unlock()
}

// IncCompoundIncomplete records a component closed with missing
// sub-patterns.
func (c *Collector) IncCompoundIncomplete() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.compoundIncomplete++
	c.mu.Unlock()
}

// IncCompoundTimeout records a compound wait budget expiry.
func (c *Collector) IncCompoundTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.compoundTimeouts++
	c.mu.Unlock()
}

// AbsorbDeliveryStats records delivery counters from the policy layer.
// Called once at session completion.
func (c *Collector) AbsorbDeliveryStats(delivered, dropped int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsDelivered = delivered
	c.eventsDropped = dropped
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FragmentsConsumed:    c.fragmentsConsumed,
		BytesConsumed:        c.bytesConsumed,
		LinesProcessed:       c.linesProcessed,
		MarkersStarted:       c.markersStarted,
		MarkersCompleted:     c.markersCompleted,
		MarkersRejected:      c.markersRejected,
		MarkersSuppressed:    c.markersSuppressed,
		DeltasEmitted:        c.deltasEmitted,
		Truncations:          c.truncations,
		Evictions:            c.evictions,
		EnvelopeDecodeErrors: c.envelopeDecodeErrors,
		SequenceViolations:   c.sequenceViolations,
		CompoundIncomplete:   c.compoundIncomplete,
		CompoundTimeouts:     c.compoundTimeouts,
		EventsDelivered:      c.eventsDelivered,
		EventsDropped:        c.eventsDropped,
		SessionID:            c.sessionID,
		Policy:               c.policy,
	}
}
