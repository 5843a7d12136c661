package store

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/atmx/rwa-engine/internal/model"
)

// MemoryStore implements Store with an in-memory slice. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	events []model.Event
	byID   map[string]int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]int),
	}
}

func (s *MemoryStore) AppendEvents(_ context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if _, ok := s.byID[e.ID]; ok {
			continue
		}
		if n := len(s.events); n > 0 && e.Sequence <= s.events[n-1].Sequence {
			return fmt.Errorf("store: sequence %d out of order after %d", e.Sequence, s.events[n-1].Sequence)
		}
		// Copy attributes so callers can't mutate stored events.
		e.Attributes = maps.Clone(e.Attributes)
		s.byID[e.ID] = len(s.events)
		s.events = append(s.events, e)
	}
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e := s.events[i]
	e.Attributes = maps.Clone(e.Attributes)
	return &e, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, f model.EventFilter) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, e := range s.events {
		if f.Match(e) {
			e.Attributes = maps.Clone(e.Attributes)
			out = append(out, e)
		}
	}
	return tail(out, f.Limit), nil
}

func (s *MemoryStore) LastSequence(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) == 0 {
		return 0, nil
	}
	return s.events[len(s.events)-1].Sequence, nil
}
