package audit

import (
	"context"
	"sync"
)

// Store persists audit events. MirrorStore and InMemoryStore implement it.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// InMemoryStore keeps one append-only log plus, per subject, the offsets
// of that subject's events in the log.
type InMemoryStore struct {
	mu        sync.RWMutex
	log       []Event
	bySubject map[string][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{bySubject: map[string][]int{}}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	s.bySubject[event.Subject] = append(s.bySubject[event.Subject], len(s.log))
	s.log = append(s.log, event)
	s.mu.Unlock()
	return nil
}

// ListBySubject returns subject's events oldest first. An unknown subject
// yields an empty, non-nil slice.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offsets := s.bySubject[subject]
	out := make([]Event, len(offsets))
	for i, off := range offsets {
		out[i] = s.log[off]
	}
	return out, nil
}

// All returns every event in append order.
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.log...)
}
