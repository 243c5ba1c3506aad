package broadcast

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var ErrBroadcasterClosed = errors.New("broadcast: broadcaster is closed")

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Topic       string
	Data        T
	PublishedAt time.Time
}

// Subscriber receives messages from a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns a channel for receiving broadcast messages.
	// The channel is closed when the subscriber is closed or dropped as a slow consumer.
	Receive() <-chan Message[T]

	// Close is idempotent and safe to call multiple times.
	Close() error
}

// Broadcaster sends messages to multiple subscribers.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for the given topics, or for every topic when
	// none are given. Cancelling ctx removes the subscription.
	Subscribe(ctx context.Context, topics ...string) Subscriber[T]

	// Broadcast never blocks on slow subscribers: a subscriber whose buffer is full
	// is closed and removed.
	Broadcast(ctx context.Context, msg Message[T]) error

	Close() error
}

type subscriber[T any] struct {
	ch     chan Message[T]
	topics []string
	closed bool
	mu     sync.RWMutex
}

func newSubscriber[T any](bufferSize int, topics []string) *subscriber[T] {
	return &subscriber[T]{
		ch:     make(chan Message[T], bufferSize),
		topics: topics,
	}
}

func (s *subscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

func (s *subscriber[T]) wants(topic string) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}

// send reports false when the subscriber is closed or its buffer is full.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
