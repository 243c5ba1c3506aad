package audit

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(_ context.Context, events ...Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		ev.Metadata = maps.Clone(ev.Metadata)
		s.events = append(s.events, ev)
	}
	return nil
}

// Query returns matching events newest first.
func (s *MemoryStorage) Query(_ context.Context, c Criteria) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if c.AccountID != ev.AccountID {
			continue
		}
		if len(c.Actions) > 0 && !slices.Contains(c.Actions, ev.Action) {
			continue
		}
		if !c.Since.IsZero() && ev.CreatedAt.Before(c.Since) {
			continue
		}
		ev.Metadata = maps.Clone(ev.Metadata)
		out = append(out, ev)
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out, nil
}
