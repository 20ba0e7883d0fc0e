// Package history keeps a bounded log of detection and session events and
// fans them out to the status display.
package history

import (
	"sync"
	"time"
)

// Kind classifies an event.
type Kind string

const (
	KindObservation Kind = "observation"
	KindTransition  Kind = "transition"
	KindSession     Kind = "session"
	KindAlert       Kind = "alert"
	KindError       Kind = "error"
	KindSettings    Kind = "settings"
)

const (
	DefaultMaxEntries  = 500
	DefaultEventBuffer = 64
)

// Event is one entry in the log or on the event channel.
type Event struct {
	Kind      Kind           `json:"type"`
	Time      time.Time      `json:"time"`
	SessionID string         `json:"session_id,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Store holds recent events in memory.
type Store struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
}

// NewStore creates a store keeping at most maxEntries events.
func NewStore(maxEntries, eventBuffer int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if eventBuffer < 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &Store{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
	}
}

// Record appends the event to the log and emits it.
func (s *Store) Record(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}
	s.mu.Unlock()

	s.Emit(e)
}

// Recent returns logged events from the last n seconds, oldest first.
// n <= 0 returns everything.
func (s *Store) Recent(seconds int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if seconds <= 0 {
		return append([]Event(nil), s.entries...)
	}
	cutoff := time.Now().Add(-time.Duration(seconds) * time.Second)
	var out []Event
	for _, e := range s.entries {
		if !e.Time.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// Events returns the channel of emitted events.
func (s *Store) Events() <-chan Event {
	return s.eventsCh
}

// Emit publishes an event without logging it. Drops it when no one keeps up.
func (s *Store) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	select {
	case s.eventsCh <- e:
	default:
	}
}

// Len returns the number of logged events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
