// Package runtime orchestrates a single extraction session: it pulls
// fragment envelopes from a source, drives the extraction engine,
// forwards events through the delivery policy, evaluates advisory
// budgets, and produces a session report.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/lodeworks/sluice/adapter"
	"github.com/lodeworks/sluice/engine"
	"github.com/lodeworks/sluice/ipc"
	"github.com/lodeworks/sluice/log"
	"github.com/lodeworks/sluice/metrics"
	"github.com/lodeworks/sluice/policy"
	"github.com/lodeworks/sluice/types"
)

// Outcome classifies how a session ended.
type Outcome string

const (
	// OutcomeSuccess is a cleanly finished stream.
	OutcomeSuccess Outcome = "success"
	// OutcomeParseErrorThreshold means the rolling parse-error window tripped
	// and the orchestrator chose to abort the transport.
	OutcomeParseErrorThreshold Outcome = "parse_error_threshold"
	// OutcomeStreamError is an unrecoverable transport failure.
	OutcomeStreamError Outcome = "stream_error"
	// OutcomeCanceled means the context was canceled mid-stream.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeDeliveryFailure means the delivery policy rejected events.
	OutcomeDeliveryFailure Outcome = "delivery_failure"
	// OutcomeBudgetExceeded means the session wall-clock budget ran out.
	OutcomeBudgetExceeded Outcome = "budget_exceeded"
)

// Budgets are advisory timers evaluated by the orchestrator, not the
// engine. Zero disables the corresponding check.
type Budgets struct {
	// Session is the wall-clock allowance for the whole stream.
	Session time.Duration
	// CompoundWait is how long an open compound component may remain
	// incomplete before a COMPOUND_TIMEOUT error event is emitted.
	CompoundWait time.Duration
}

// ParseErrorPolicy configures the rolling parse-error threshold.
type ParseErrorPolicy struct {
	// Max is the number of errors inside the window that trips the
	// threshold. Zero disables it.
	Max int
	// Window is the rolling window duration.
	Window time.Duration
}

// DefaultBudgets mirror the advisory values the producer SDK assumes.
var DefaultBudgets = Budgets{
	Session:      30 * time.Second,
	CompoundWait: 10 * time.Second,
}

// DefaultParseErrorPolicy trips after 5 parse errors in 10 seconds.
var DefaultParseErrorPolicy = ParseErrorPolicy{
	Max:    5,
	Window: 10 * time.Second,
}

// SessionConfig configures a session orchestrator.
type SessionConfig struct {
	// Meta is the session identity (required: SessionID non-empty).
	Meta *types.SessionMeta
	// Source yields fragment envelopes (required).
	Source FragmentSource
	// Engine is the extraction engine (required).
	Engine *engine.Engine
	// Policy is the event delivery policy (required).
	Policy policy.Policy
	// Collector receives session metrics. Nil disables metrics.
	Collector *metrics.Collector
	// Logger defaults to a session-scoped logger when nil.
	Logger *log.Logger
	// Budgets default to DefaultBudgets when zero-valued.
	Budgets Budgets
	// ParseErrors defaults to DefaultParseErrorPolicy when zero-valued.
	ParseErrors ParseErrorPolicy
	// Adapters receive a best-effort session_completed notification.
	Adapters []adapter.Adapter
}

// SessionError classifies orchestration failures for outcome mapping.
type SessionError struct {
	Kind SessionErrorKind
	Err  error
}

// SessionErrorKind discriminates SessionError values.
type SessionErrorKind int

const (
	// SessionErrorStream is an unrecoverable transport failure.
	SessionErrorStream SessionErrorKind = iota
	// SessionErrorPolicy is a delivery policy failure.
	SessionErrorPolicy
	// SessionErrorCanceled is context cancellation.
	SessionErrorCanceled
)

func (e *SessionError) Error() string { return e.Err.Error() }
func (e *SessionError) Unwrap() error { return e.Err }

// IsPolicyError reports whether err is a delivery policy failure.
func IsPolicyError(err error) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == SessionErrorPolicy
}

// IsCanceledError reports whether err is a cancellation.
func IsCanceledError(err error) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == SessionErrorCanceled
}

// SessionResult summarizes a finished session.
type SessionResult struct {
	Meta       *types.SessionMeta
	Outcome    Outcome
	Message    string
	Duration   time.Duration
	EventCount int64

	// Components holds the final store contents in creation order.
	Components []*types.Component
	// MissingCritical lists critical component names never opened.
	MissingCritical []string

	PolicyStats policy.Stats
	Metrics     metrics.Snapshot
}

// Orchestrator runs one extraction session end to end.
type Orchestrator struct {
	cfg    SessionConfig
	logger *log.Logger
	window *ErrorWindow

	eventCount int64
	startTime  time.Time

	// timeoutWarned dedups COMPOUND_TIMEOUT per component open. Keyed by
	// component ID; the value is the openedAt the warning covered, so a
	// reopen gets a fresh allowance.
	timeoutWarned map[string]time.Time

	now func() time.Time
}

// NewOrchestrator validates the config and creates an orchestrator.
func NewOrchestrator(cfg SessionConfig) (*Orchestrator, error) {
	if cfg.Meta == nil || cfg.Meta.SessionID == "" {
		return nil, errors.New("session meta with a session_id is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("fragment source is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("extraction engine is required")
	}
	if cfg.Policy == nil {
		return nil, errors.New("delivery policy is required")
	}

	if cfg.Budgets == (Budgets{}) {
		cfg.Budgets = DefaultBudgets
	}
	if cfg.ParseErrors == (ParseErrorPolicy{}) {
		cfg.ParseErrors = DefaultParseErrorPolicy
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger(cfg.Meta)
	}

	return &Orchestrator{
		cfg:           cfg,
		logger:        logger,
		window:        NewErrorWindow(cfg.ParseErrors.Max, cfg.ParseErrors.Window),
		timeoutWarned: make(map[string]time.Time),
		now:           time.Now,
	}, nil
}

// Run consumes the stream until end-of-stream, budget exhaustion, or a
// terminating error. The result is always non-nil; err reports delivery
// and cancellation failures for exit-code mapping.
func (o *Orchestrator) Run(ctx context.Context) (*SessionResult, error) {
	o.startTime = o.now()
	eng := o.cfg.Engine
	var lastSeq int64

	o.logger.Info("session started", map[string]any{
		"budget_ms": o.cfg.Budgets.Session.Milliseconds(),
	})

	for {
		select {
		case <-ctx.Done():
			serr := &SessionError{Kind: SessionErrorCanceled, Err: ctx.Err()}
			return o.terminate(ctx, OutcomeCanceled, "session canceled"), serr
		default:
		}

		if o.cfg.Budgets.Session > 0 && o.now().Sub(o.startTime) > o.cfg.Budgets.Session {
			o.logger.Warn("session budget exceeded", map[string]any{
				"budget_ms": o.cfg.Budgets.Session.Milliseconds(),
			})
			return o.terminate(ctx, OutcomeBudgetExceeded, "session wall-clock budget exceeded"), nil
		}

		env, err := o.cfg.Source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return o.terminate(ctx, OutcomeSuccess, "stream ended"), nil
			}
			if ipc.IsFatalFrameError(err) || !isRecoverable(err) {
				o.logger.Error("stream error", map[string]any{"error": err.Error()})
				o.deliver(ctx, []types.Event{
					types.ErrorEvent(types.ErrorCodeStream, err.Error()),
				})
				res := o.terminate(ctx, OutcomeStreamError, err.Error())
				return res, &SessionError{Kind: SessionErrorStream, Err: err}
			}

			// Recoverable envelope failure: surface, count, keep reading.
			if stop, serr := o.recordParseError(ctx, err.Error()); stop {
				return o.terminate(ctx, OutcomeParseErrorThreshold,
					"parse error threshold exceeded"), serr
			}
			continue
		}

		if verr := o.validateEnvelope(env, lastSeq); verr != nil {
			if stop, serr := o.recordParseError(ctx, verr.Error()); stop {
				return o.terminate(ctx, OutcomeParseErrorThreshold,
					"parse error threshold exceeded"), serr
			}
			continue
		}
		lastSeq = env.Seq

		events := eng.Consume(env.Text)
		events = o.checkCompoundWait(events)
		if err := o.deliver(ctx, events); err != nil {
			res := o.terminate(ctx, OutcomeDeliveryFailure, err.Error())
			return res, &SessionError{Kind: SessionErrorPolicy, Err: err}
		}

		if env.Final {
			return o.terminate(ctx, OutcomeSuccess, "final fragment received"), nil
		}
	}
}

// validateEnvelope checks contract and sequence invariants. Violations
// degrade to recoverable parse errors; the fragment is skipped.
func (o *Orchestrator) validateEnvelope(env *types.FragmentEnvelope, lastSeq int64) error {
	if env.ContractVersion != types.ContractVersion {
		return fmt.Errorf("contract version mismatch: expected %s, got %s",
			types.ContractVersion, env.ContractVersion)
	}
	if env.SessionID != o.cfg.Meta.SessionID {
		return fmt.Errorf("session_id mismatch: expected %s, got %s",
			o.cfg.Meta.SessionID, env.SessionID)
	}
	if env.Seq <= lastSeq {
		o.cfg.Collector.IncSequenceViolation()
		return fmt.Errorf("sequence violation: seq %d after %d", env.Seq, lastSeq)
	}
	return nil
}

// recordParseError emits a PARSE_ERROR event and evaluates the rolling
// threshold. Returns stop=true once the window trips; the second return
// carries the terminating error only when delivery itself failed.
func (o *Orchestrator) recordParseError(ctx context.Context, message string) (bool, *SessionError) {
	o.cfg.Collector.IncEnvelopeDecodeError()
	o.logger.Warn("fragment parse error", map[string]any{"error": message})

	events := []types.Event{types.ErrorEvent(types.ErrorCodeParse, message)}

	tripped := o.window.Record(o.now())
	if tripped {
		events = append(events, types.ErrorEvent(types.ErrorCodeParseThreshold,
			fmt.Sprintf("%d parse errors within %s", o.window.Count(), o.cfg.ParseErrors.Window)))
	}

	if err := o.deliver(ctx, events); err != nil {
		return true, &SessionError{Kind: SessionErrorPolicy, Err: err}
	}
	return tripped, nil
}

// checkCompoundWait appends a COMPOUND_TIMEOUT error event when the open
// component is a compound whose sub-patterns have not all arrived within
// the advisory wait budget. Emitted at most once per component open.
func (o *Orchestrator) checkCompoundWait(events []types.Event) []types.Event {
	if o.cfg.Budgets.CompoundWait <= 0 {
		return events
	}

	open, openedAt, ok := o.cfg.Engine.Open()
	if !ok {
		return events
	}

	validator := o.cfg.Engine.Validator()
	if validator.IsComplete(open.CanonicalName, open.Code) {
		return events
	}
	if o.now().Sub(openedAt) <= o.cfg.Budgets.CompoundWait {
		return events
	}
	if warned, seen := o.timeoutWarned[open.ID]; seen && warned.Equal(openedAt) {
		return events
	}

	o.timeoutWarned[open.ID] = openedAt
	o.cfg.Collector.IncCompoundTimeout()
	o.logger.Warn("compound wait budget exceeded", map[string]any{
		"component": open.CanonicalName,
		"waited":    o.now().Sub(openedAt).String(),
	})

	return append(events, types.ErrorEvent(types.ErrorCodeCompoundTimeout,
		fmt.Sprintf("component %s incomplete after %s", open.CanonicalName, o.cfg.Budgets.CompoundWait)))
}

// deliver forwards events through the policy and tracks the count.
func (o *Orchestrator) deliver(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	o.eventCount += int64(len(events))
	if err := o.cfg.Policy.IngestEvents(ctx, events); err != nil {
		o.logger.Error("event delivery failed", map[string]any{
			"batch": len(events),
			"error": err.Error(),
		})
		return fmt.Errorf("delivery policy: %w", err)
	}
	return nil
}

// terminate finishes the engine, flushes the policy, absorbs stats, and
// builds the result. Best-effort on every path; used for success and
// failure alike.
func (o *Orchestrator) terminate(ctx context.Context, outcome Outcome, message string) *SessionResult {
	final := o.cfg.Engine.Finish()
	if err := o.deliver(ctx, final); err != nil && outcome == OutcomeSuccess {
		outcome = OutcomeDeliveryFailure
		message = err.Error()
	}

	// Flush with cancellation stripped so buffered events survive
	// a canceled parent context.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	if err := o.cfg.Policy.Flush(flushCtx); err != nil {
		o.logger.Warn("policy flush failed", map[string]any{"error": err.Error()})
		if outcome == OutcomeSuccess {
			outcome = OutcomeDeliveryFailure
			message = err.Error()
		}
	}
	cancel()

	ps := o.cfg.Policy.Stats()
	o.cfg.Collector.AbsorbDeliveryStats(ps.EventsDelivered, ps.EventsDropped)

	components := o.cfg.Engine.Store().All()
	result := &SessionResult{
		Meta:            o.cfg.Meta,
		Outcome:         outcome,
		Message:         message,
		Duration:        o.now().Sub(o.startTime),
		EventCount:      o.eventCount,
		Components:      components,
		MissingCritical: missingCritical(components),
		PolicyStats:     ps,
		Metrics:         o.cfg.Collector.Snapshot(),
	}

	o.logger.Info("session finished", map[string]any{
		"outcome":    string(outcome),
		"duration":   result.Duration.String(),
		"events":     result.EventCount,
		"components": len(components),
	})

	o.notify(ctx, result)

	return result
}

// notify publishes the session_completed event to all adapters.
// Failures are logged, never fatal.
func (o *Orchestrator) notify(ctx context.Context, result *SessionResult) {
	if len(o.cfg.Adapters) == 0 {
		return
	}

	event := buildCompletedEvent(result)
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for _, a := range o.cfg.Adapters {
		if err := a.Publish(notifyCtx, event); err != nil {
			o.logger.Warn("adapter publish failed", map[string]any{"error": err.Error()})
		}
	}
}

// buildCompletedEvent maps a result to the adapter payload.
func buildCompletedEvent(result *SessionResult) *adapter.SessionCompletedEvent {
	complete := 0
	for _, c := range result.Components {
		if c.IsComplete {
			complete++
		}
	}
	return &adapter.SessionCompletedEvent{
		ContractVersion:    types.ContractVersion,
		EventType:          "session_completed",
		SessionID:          result.Meta.SessionID,
		RequestID:          result.Meta.RequestID,
		Outcome:            string(result.Outcome),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		DurationMs:         result.Duration.Milliseconds(),
		EventCount:         result.EventCount,
		Components:         len(result.Components),
		ComponentsComplete: complete,
		MissingCritical:    result.MissingCritical,
		Truncations:        result.Metrics.Truncations,
		Evictions:          result.Metrics.Evictions,
	}
}

// missingCritical returns critical names with no component in the store,
// sorted for stable output.
func missingCritical(components []*types.Component) []string {
	present := make(map[string]bool, len(components))
	for _, c := range components {
		present[c.CanonicalName] = true
	}

	var missing []string
	for _, name := range types.CriticalNames() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// isRecoverable reports whether a source error allows further reads.
func isRecoverable(err error) bool {
	var fe *ipc.FrameError
	return errors.As(err, &fe) && !fe.IsFatal()
}
