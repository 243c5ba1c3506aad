package broadcast

import (
	"context"
	"sync"
	"time"
)

// MemoryBroadcaster fans messages out to in-process subscribers.
// All methods are safe for concurrent use.
type MemoryBroadcaster[T any] struct {
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	now         func() time.Time
	onDrop      func(topic string)
	closed      bool
	done        chan struct{}
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

type Option func(*options)

type options struct {
	now    func() time.Time
	onDrop func(topic string)
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDropHandler is called with the message topic each time a slow subscriber is dropped.
func WithDropHandler(fn func(topic string)) Option {
	return func(o *options) {
		o.onDrop = fn
	}
}

// NewMemoryBroadcaster creates an in-memory broadcaster whose subscribers buffer
// up to bufferSize messages each. A minimum buffer size of 1 is enforced.
func NewMemoryBroadcaster[T any](bufferSize int, opts ...Option) *MemoryBroadcaster[T] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
		now:         o.now,
		onDrop:      o.onDrop,
		done:        make(chan struct{}),
	}
}

// Subscribe returns an already-closed subscriber once the broadcaster is closed.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context, topics ...string) Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newSubscriber[T](b.bufferSize, topics)
	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			select {
			case <-ctx.Done():
				b.unsubscribe(sub)
			case <-b.done:
			}
		}()
	}

	return sub
}

// Broadcast stamps PublishedAt when it is zero and delivers to matching subscribers.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBroadcasterClosed
	}

	for sub := range b.subscribers {
		if !sub.wants(msg.Topic) {
			continue
		}
		if !sub.send(msg) {
			if b.onDrop != nil {
				b.onDrop(msg.Topic)
			}
			// Removal takes the write lock, so it cannot run under our read lock.
			b.cleanupWg.Add(1)
			go func() {
				defer b.cleanupWg.Done()
				b.unsubscribe(sub)
			}()
		}
	}

	return nil
}

// Len returns the number of active subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every subscriber. Safe to call multiple times.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	for sub := range b.subscribers {
		_ = sub.Close()
	}
	clear(b.subscribers)
	b.mu.Unlock()

	b.cleanupWg.Wait()
	return nil
}

func (b *MemoryBroadcaster[T]) unsubscribe(sub *subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	_ = sub.Close()
}
