// Package store owns accumulated component code and bookkeeping for a
// single extraction session, with bounded memory.
//
// Bounds:
//   - Per-component byte ceiling: oversized appends truncate the oldest
//     bytes back to a line boundary. Appends are never rejected.
//   - Component-count ceiling: admitting a component past the ceiling
//     evicts the oldest fifth of already-complete components. Streaming
//     components are never evicted.
//
// The store is owned by exactly one session and is accessed from a single
// goroutine; it carries no locks.
package store

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/lodeworks/sluice/types"
)

// Default ceilings.
const (
	// DefaultMaxComponentBytes caps one component's accumulated code (1 MiB).
	DefaultMaxComponentBytes = 1 << 20
	// DefaultMaxComponents caps the number of components per session.
	DefaultMaxComponents = 100
)

// Config configures store ceilings. Zero values select the defaults.
type Config struct {
	// MaxComponentBytes is the per-component code ceiling in bytes.
	MaxComponentBytes int
	// MaxComponents is the session-wide component count ceiling.
	MaxComponents int
}

// Stats holds store bookkeeping counters.
type Stats struct {
	// Components is the number of components currently held.
	Components int
	// TotalBytes is the sum of all component sizes.
	TotalBytes int64
	// Truncations counts size-ceiling truncations.
	Truncations int64
	// Evictions counts components evicted at the count ceiling.
	Evictions int64
}

// Store accumulates component code for one session.
type Store struct {
	cfg        Config
	components map[string]*types.Component

	truncations int64
	evictions   int64

	now func() time.Time
}

// New creates a store with the given config.
func New(cfg Config) *Store {
	if cfg.MaxComponentBytes <= 0 {
		cfg.MaxComponentBytes = DefaultMaxComponentBytes
	}
	if cfg.MaxComponents <= 0 {
		cfg.MaxComponents = DefaultMaxComponents
	}
	return &Store{
		cfg:        cfg,
		components: make(map[string]*types.Component),
		now:        time.Now,
	}
}

// Open admits a component and marks it streaming. Re-opening an existing
// id discards the previous body and restarts accumulation: a regenerated
// component replaces its earlier take.
//
// At the count ceiling the oldest 20% of already-complete components are
// evicted by last-modified time. When nothing is evictable the new
// component is admitted anyway; overflow is never fatal.
func (s *Store) Open(id, canonicalName string, position types.Position) *types.Component {
	now := s.now()

	if c, ok := s.components[id]; ok {
		c.CanonicalName = canonicalName
		c.Position = position
		c.Code = nil
		c.SizeBytes = 0
		c.IsComplete = false
		c.IsStreaming = true
		c.LastModifiedAt = now
		c.ValidationErrors = nil
		return c
	}

	if len(s.components) >= s.cfg.MaxComponents {
		s.evictOldestCompleted()
	}

	c := &types.Component{
		ID:             id,
		CanonicalName:  canonicalName,
		Position:       position,
		IsStreaming:    true,
		CreatedAt:      now,
		LastModifiedAt: now,
	}
	s.components[id] = c
	return c
}

// Append adds text to a component's body, truncating the oldest bytes at
// a line boundary when the ceiling would be exceeded. Returns the number
// of bytes actually appended (always len(text); truncation discards old
// data, never the incoming append).
func (s *Store) Append(id string, text []byte) (int, error) {
	c, ok := s.components[id]
	if !ok {
		return 0, fmt.Errorf("append to unknown component %q", id)
	}

	c.Code = append(c.Code, text...)
	if len(c.Code) > s.cfg.MaxComponentBytes {
		cut := len(c.Code) - s.cfg.MaxComponentBytes
		// Advance the cut to the next line start so the retained buffer
		// never begins mid-line.
		if idx := bytes.IndexByte(c.Code[cut:], '\n'); idx >= 0 {
			cut += idx + 1
		} else {
			cut = len(c.Code)
		}
		c.Code = append([]byte(nil), c.Code[cut:]...)
		s.truncations++
	}

	c.SizeBytes = len(c.Code)
	c.LastModifiedAt = s.now()
	return len(text), nil
}

// Close marks a component complete and no longer streaming.
func (s *Store) Close(id string) error {
	c, ok := s.components[id]
	if !ok {
		return fmt.Errorf("close of unknown component %q", id)
	}
	c.IsStreaming = false
	c.IsComplete = true
	c.LastModifiedAt = s.now()
	return nil
}

// Get returns a component by id.
func (s *Store) Get(id string) (*types.Component, bool) {
	c, ok := s.components[id]
	return c, ok
}

// All returns every component ordered by creation time.
func (s *Store) All() []*types.Component {
	out := make([]*types.Component, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Stats returns current bookkeeping counters.
func (s *Store) Stats() Stats {
	stats := Stats{
		Components:  len(s.components),
		Truncations: s.truncations,
		Evictions:   s.evictions,
	}
	for _, c := range s.components {
		stats.TotalBytes += int64(c.SizeBytes)
	}
	return stats
}

// evictOldestCompleted removes the oldest 20% of completed components by
// last-modified time. Streaming components are never candidates.
func (s *Store) evictOldestCompleted() {
	var completed []*types.Component
	for _, c := range s.components {
		if c.IsComplete && !c.IsStreaming {
			completed = append(completed, c)
		}
	}
	if len(completed) == 0 {
		return
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].LastModifiedAt.Before(completed[j].LastModifiedAt)
	})

	n := s.cfg.MaxComponents / 5
	if n < 1 {
		n = 1
	}
	if n > len(completed) {
		n = len(completed)
	}
	for _, c := range completed[:n] {
		delete(s.components, c.ID)
		s.evictions++
	}
}
