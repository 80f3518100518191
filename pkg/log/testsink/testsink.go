// Package testsink provides an in-memory log.Logger for test assertions,
// the functional counterpart of a file-backed log reader for a codec-
// free engine: events are kept as a slice instead of being round-tripped
// through an encoder.
package testsink

import (
	"sync"

	"github.com/emotiva/xmc-engine/pkg/log"
)

// Sink records every event it receives. Safe for concurrent use.
type Sink struct {
	mu     sync.Mutex
	events []log.Event
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Log appends event to the recorded list.
func (s *Sink) Log(event log.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a snapshot of every recorded event, in arrival order.
func (s *Sink) Events() []log.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]log.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Filter returns every recorded event for which pred returns true.
func (s *Sink) Filter(pred func(log.Event) bool) []log.Event {
	var out []log.Event
	for _, e := range s.Events() {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards every recorded event.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

var _ log.Logger = (*Sink)(nil)
