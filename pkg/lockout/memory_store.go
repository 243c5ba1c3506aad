package lockout

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps attempt state in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
	cfg    Config // policy seen on the last write, used by purge

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often expired records are purged.
// Zero disables the background cleanup.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates a store that purges expired records every minute.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		states:          make(map[string]State),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string, now time.Time, cfg Config) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key].current(now, cfg), nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, key string, now time.Time, cfg Config) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.states[key].withFailure(now, cfg)
	s.put(key, next, cfg)
	return next, nil
}

func (s *MemoryStore) Reserve(_ context.Context, key string, now time.Time, cfg Config) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := s.states[key].withReservation(now, cfg)
	s.put(key, next, cfg)
	return next, ok, nil
}

func (s *MemoryStore) Settle(_ context.Context, key string, now time.Time, cfg Config, outcome Outcome) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.states[key].settled(now, cfg, outcome)
	s.put(key, next, cfg)
	return next, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, key)
	return nil
}

// put must be called with mu held.
func (s *MemoryStore) put(key string, st State, cfg Config) {
	s.cfg = cfg
	if st.IsZero() {
		delete(s.states, key)
		return
	}
	s.states[key] = st
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			s.purge(now)
		case <-s.stopCleanup:
			return
		}
	}
}

// purge drops records whose window, lock and reservations have all ended.
func (s *MemoryStore) purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, st := range s.states {
		if st.ttl(now, s.cfg) <= 0 {
			delete(s.states, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}
