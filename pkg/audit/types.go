package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Event is a single audit record.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	AccountID uuid.UUID      `json:"account_id"`
	Action    string         `json:"action"`
	Result    Result         `json:"result"`
	RequestID string         `json:"request_id,omitempty"`
	IP        string         `json:"ip,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e Event) Validate() error {
	switch {
	case e.Action == "":
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	case e.AccountID == uuid.Nil:
		return fmt.Errorf("%w: account id is required", ErrEventValidation)
	case e.Result != ResultSuccess && e.Result != ResultFailure:
		return fmt.Errorf("%w: unknown result %q", ErrEventValidation, e.Result)
	}
	return nil
}

// EventOption decorates an event before it is stored.
type EventOption func(*Event)

func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// Criteria selects events for an account. Zero Limit means 50.
type Criteria struct {
	AccountID uuid.UUID
	Actions   []string
	Since     time.Time
	Limit     int
}

// Storage persists and queries events.
type Storage interface {
	Store(ctx context.Context, events ...Event) error
	Query(ctx context.Context, c Criteria) ([]Event, error)
}

// Reader is the read side handed to transports.
type Reader interface {
	Find(ctx context.Context, c Criteria) ([]Event, error)
}
