package memory

import (
	"context"
	"sync"

	id "eventpass/pkg/domain"
	audit "eventpass/pkg/platform/audit"
)

// InMemoryStore keeps audit events in process, for tests and demo deployments.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// ListByActor returns events performed by actor, oldest first.
func (s *InMemoryStore) ListByActor(_ context.Context, actor id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.ActorID == actor {
			out = append(out, e)
		}
	}
	return out, nil
}

// ListAll returns every event, oldest first.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
