package store

import (
	"context"
	"sync"
	"time"

	"donorlink/internal/outbox"
	id "donorlink/pkg/domain"
)

// InMemoryStore keeps pending events in append order. Processed events are
// discarded, and with a capacity set the oldest pending events are dropped once
// it is reached.
type InMemoryStore struct {
	mu       sync.Mutex
	events   []outbox.Event
	capacity int
	dropped  int
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithCapacity bounds the number of pending events. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.capacity = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && len(s.events) >= s.capacity {
		over := len(s.events) - s.capacity + 1
		s.events = append(s.events[:0:0], s.events[over:]...)
		s.dropped += over
	}
	s.events = append(s.events, event)
	return nil
}

// FetchUnprocessed returns up to limit unpublished events, oldest first.
func (s *InMemoryStore) FetchUnprocessed(_ context.Context, limit int) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []outbox.Event
	for _, e := range s.events {
		if e.ProcessedAt != nil {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkProcessed(_ context.Context, ids []id.EventID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := make(map[id.EventID]struct{}, len(ids))
	for _, eventID := range ids {
		marked[eventID] = struct{}{}
	}
	kept := s.events[:0]
	for _, e := range s.events {
		if _, ok := marked[e.ID]; ok {
			continue
		}
		kept = append(kept, e)
	}
	clear(s.events[len(kept):])
	s.events = kept
	return nil
}

// Dropped reports how many pending events were evicted by the capacity bound.
func (s *InMemoryStore) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// All returns a copy of every retained event.
func (s *InMemoryStore) All() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}
