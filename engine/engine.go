// Package engine implements the streaming component extraction engine.
//
// The engine consumes arbitrarily chunked text fragments, reassembles
// lines across fragment boundaries, recognizes sentinel markers at brace
// depth zero, and emits a strictly ordered start/delta/stop event
// sequence that is independent of how the underlying text was chunked.
//
// The engine is push-driven and single-threaded: Consume is invoked once
// per inbound fragment and returns before the next fragment is presented.
// It never blocks, sleeps, or performs I/O.
package engine

import (
	"strings"
	"time"

	"github.com/lodeworks/sluice/compound"
	"github.com/lodeworks/sluice/grammar"
	"github.com/lodeworks/sluice/log"
	"github.com/lodeworks/sluice/metrics"
	"github.com/lodeworks/sluice/store"
	"github.com/lodeworks/sluice/types"
)

// Config configures an extraction engine.
type Config struct {
	// Store configures component accumulation ceilings.
	Store store.Config
	// Aliases extends the default alias table.
	Aliases map[string]string
	// Registry is the compound-component registry.
	// Nil selects the built-in defaults.
	Registry *compound.Registry
	// Logger is optional; nil disables engine logging.
	Logger *log.Logger
	// Collector is optional; nil disables metrics.
	Collector *metrics.Collector
}

// Engine extracts components from one generation session's text stream.
//
// Not safe for concurrent use: one engine serves exactly one logical
// stream of fragments.
type Engine struct {
	sess      *session
	aliases   *grammar.AliasResolver
	store     *store.Store
	validator *compound.Validator
	logger    *log.Logger
	collector *metrics.Collector

	now func() time.Time
}

// New creates an engine with fresh session state.
func New(cfg Config) *Engine {
	registry := cfg.Registry
	if registry == nil {
		registry = compound.DefaultRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	now := time.Now
	return &Engine{
		sess:      &session{startedAt: now()},
		aliases:   grammar.NewAliasResolver(cfg.Aliases),
		store:     store.New(cfg.Store),
		validator: compound.NewValidator(registry),
		logger:    logger,
		collector: cfg.Collector,
		now:       now,
	}
}

// Consume processes one fragment and returns the events it produced, in
// emission order. Fragments may split lines, markers, or even the marker
// keywords at any byte; the unterminated trailing line is always held
// back until the next fragment or Finish.
func (e *Engine) Consume(fragment string) []types.Event {
	if e.sess.finished || fragment == "" {
		return nil
	}
	e.collector.AddFragment(len(fragment))

	var events []types.Event
	data := e.sess.carry + fragment
	e.sess.carry = ""

	for {
		idx := strings.IndexByte(data, '\n')
		if idx < 0 {
			e.sess.carry = data
			break
		}
		line := data[:idx]
		data = data[idx+1:]
		events = e.processLine(line, events)
	}

	// Fragment boundary: hand accumulated text to the store and surface
	// it as one delta.
	events = e.flushDelta(events)
	return events
}

// Finish signals end-of-stream. Any residual carry-over line is
// force-flushed as a final delta when a component is open, and an open
// component is force-closed complete.
func (e *Engine) Finish() []types.Event {
	if e.sess.finished {
		return nil
	}
	e.sess.finished = true

	var events []types.Event
	if e.sess.carry != "" {
		if e.sess.openID != "" {
			e.sess.acc = append(e.sess.acc, e.sess.carry...)
		} else {
			e.logger.Debug("discarding residual text outside any component", map[string]any{
				"bytes": len(e.sess.carry),
			})
		}
		e.sess.carry = ""
	}
	events = e.flushDelta(events)
	if e.sess.openID != "" {
		events = e.closeOpen(events, true)
	}
	e.collector.SetStorePressure(e.storePressure())
	return events
}

// Store exposes the session's component store for reporting.
func (e *Engine) Store() *store.Store { return e.store }

// Open returns the currently streaming component, if any, along with the
// time it started streaming. Used by callers evaluating advisory budgets.
func (e *Engine) Open() (*types.Component, time.Time, bool) {
	if e.sess.openID == "" {
		return nil, time.Time{}, false
	}
	c, ok := e.store.Get(e.sess.openID)
	return c, e.sess.openedAt, ok
}

// StartedAt returns the session start time.
func (e *Engine) StartedAt() time.Time { return e.sess.startedAt }

// Validator exposes the compound validator for reporting.
func (e *Engine) Validator() *compound.Validator { return e.validator }

// processLine handles one complete (newline-terminated) line.
func (e *Engine) processLine(line string, events []types.Event) []types.Event {
	e.collector.IncLineProcessed()

	// Depth is adjusted first; markers are recognized only when the line
	// leaves the stream at depth zero. A code body that prints or
	// comments marker-shaped text keeps its braces open around it, so
	// such text never reaches the grammar.
	e.sess.nesting.Update(line)
	if e.sess.nesting.Level() > 0 {
		if strings.HasPrefix(strings.TrimSpace(line), grammar.Sentinel) {
			e.collector.IncMarkerSuppressed()
		}
		return e.appendText(line, events)
	}

	res := grammar.Validate(line)
	switch res.Class {
	case grammar.ClassValid:
		if res.Kind == grammar.KindStart {
			return e.handleStart(res, events)
		}
		return e.handleEnd(line, res, events)

	case grammar.ClassRejected:
		// Malformed markers are never fatal: they degrade to text.
		e.collector.IncMarkerRejected()
		e.logger.Debug("marker rejected", map[string]any{
			"reason": res.Reason,
		})
		return e.appendText(line, events)

	default:
		// ClassText, and ClassIncomplete on a terminated line: a
		// truncated sentinel followed by a real line break can never be
		// extended, so it is ordinary text.
		return e.appendText(line, events)
	}
}

// handleStart opens a component, force-closing any previously open one
// first. Closing before opening is mandatory: at most one component
// streams at a time.
func (e *Engine) handleStart(res grammar.Result, events []types.Event) []types.Event {
	canonical := e.aliases.Resolve(res.Name)

	if e.sess.openID != "" {
		events = e.flushDelta(events)
		events = e.closeOpen(events, false)
	}

	id := types.ComponentID(canonical)
	c := e.store.Open(id, canonical, res.Position)
	e.sess.openID = id
	e.sess.openName = canonical
	e.sess.openedAt = e.now()
	e.collector.IncMarkerStarted()

	e.logger.Info("component started", map[string]any{
		"component": canonical,
		"position":  string(res.Position),
	})
	return append(events, types.StartEvent(c, e.validator.IsComplete(canonical, c.Code)))
}

// handleEnd closes the open component when the END marker names it.
// A mismatched or orphan END is not an error: it degrades to text.
func (e *Engine) handleEnd(line string, res grammar.Result, events []types.Event) []types.Event {
	canonical := e.aliases.Resolve(res.Name)
	if e.sess.openID == "" || canonical != e.sess.openName {
		e.collector.IncMarkerRejected()
		e.logger.Debug("END marker does not match open component", map[string]any{
			"named": canonical,
			"open":  e.sess.openName,
		})
		return e.appendText(line, events)
	}

	events = e.flushDelta(events)
	return e.closeOpen(events, false)
}

// closeOpen closes the currently open component and emits its stop event.
// forced marks end-of-stream closure; the component is complete either way.
func (e *Engine) closeOpen(events []types.Event, forced bool) []types.Event {
	id := e.sess.openID
	c, ok := e.store.Get(id)
	if !ok {
		// Store and session disagree; drop the dangling reference.
		e.sess.openID = ""
		e.sess.openName = ""
		return events
	}

	_ = e.store.Close(id)
	missing := e.validator.Missing(c.CanonicalName, c.Code)
	c.ValidationErrors = missing
	compoundComplete := len(missing) == 0
	if !compoundComplete {
		e.collector.IncCompoundIncomplete()
	}
	e.collector.IncMarkerCompleted()

	e.logger.Info("component stopped", map[string]any{
		"component":         c.CanonicalName,
		"size_bytes":        c.SizeBytes,
		"compound_complete": compoundComplete,
		"forced":            forced,
	})

	e.sess.openID = ""
	e.sess.openName = ""
	return append(events, types.StopEvent(c, compoundComplete))
}

// appendText adds a body line to the rolling accumulator. Text outside
// any component (model chatter before the first marker) is dropped.
func (e *Engine) appendText(line string, events []types.Event) []types.Event {
	if e.sess.openID == "" {
		return events
	}
	e.sess.acc = append(e.sess.acc, line...)
	e.sess.acc = append(e.sess.acc, '\n')
	return events
}

// flushDelta hands the accumulator to the store and emits one delta
// carrying exactly that text. The delta text is the pre-truncation
// append: under overflow the store drops old data explicitly, never the
// emitted delta.
func (e *Engine) flushDelta(events []types.Event) []types.Event {
	if e.sess.openID == "" || len(e.sess.acc) == 0 {
		e.sess.acc = e.sess.acc[:0]
		return events
	}

	text := string(e.sess.acc)
	e.sess.acc = e.sess.acc[:0]

	c, ok := e.store.Get(e.sess.openID)
	if !ok {
		return events
	}
	if _, err := e.store.Append(e.sess.openID, []byte(text)); err != nil {
		e.logger.Error("store append failed", map[string]any{
			"error": err.Error(),
		})
		return events
	}
	e.collector.IncDeltaEmitted()
	return append(events, types.DeltaEvent(c, text))
}

// storePressure returns the store's truncation and eviction counters.
func (e *Engine) storePressure() (int64, int64) {
	stats := e.store.Stats()
	return stats.Truncations, stats.Evictions
}
