package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ContextExtractor pulls a string value from the context of the audited call.
type ContextExtractor func(context.Context) (string, bool)

// Logger writes events to a Storage. It is safe for concurrent use.
type Logger struct {
	storage   Storage
	now       func() time.Time
	requestID ContextExtractor
	ip        ContextExtractor
}

type Option func(*Logger)

func WithRequestIDExtractor(fn ContextExtractor) Option {
	return func(l *Logger) {
		l.requestID = fn
	}
}

func WithIPExtractor(fn ContextExtractor) Option {
	return func(l *Logger) {
		l.ip = fn
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLogger(storage Storage, opts ...Option) (*Logger, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}
	l := &Logger{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log records action for accountID.
func (l *Logger) Log(ctx context.Context, accountID uuid.UUID, action string, result Result, opts ...EventOption) error {
	ev := Event{
		ID:        uuid.New(),
		AccountID: accountID,
		Action:    action,
		Result:    result,
		CreatedAt: l.now().UTC(),
	}
	if l.requestID != nil {
		ev.RequestID, _ = l.requestID(ctx)
	}
	if l.ip != nil {
		ev.IP, _ = l.ip(ctx)
	}
	for _, opt := range opts {
		opt(&ev)
	}

	if err := ev.Validate(); err != nil {
		return err
	}
	if err := l.storage.Store(ctx, ev); err != nil {
		return errors.Join(ErrStorageFailure, err)
	}
	return nil
}

// Find implements Reader.
func (l *Logger) Find(ctx context.Context, c Criteria) ([]Event, error) {
	if c.Limit <= 0 {
		c.Limit = 50
	}
	events, err := l.storage.Query(ctx, c)
	if err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}
	return events, nil
}
