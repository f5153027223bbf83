package memory

import (
	"context"
	"sync"

	"anagolay/pkg/domain"
	"anagolay/pkg/platform/events"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[domain.AccountID][]events.Event
	all    []events.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[domain.AccountID][]events.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[domain.AccountID][]events.Event)
	s.all = nil
}

func (s *InMemoryStore) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Account] = append(s.events[event.Account], event)
	s.all = append(s.all, event)
	return nil
}

func (s *InMemoryStore) ListByAccount(_ context.Context, account domain.AccountID) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]events.Event{}, s.events[account]...), nil
}

// ListRecent returns the most recent limit events in emission order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.all) - limit
	if start < 0 {
		start = 0
	}
	return append([]events.Event{}, s.all[start:]...), nil
}
