package lockout

import (
	"context"
	"time"
)

// Store persists attempt state. Every mutating call must apply its transition
// atomically per key: concurrent reservations and failures may never be lost.
type Store interface {
	Get(ctx context.Context, key string, now time.Time, cfg Config) (State, error)
	RecordFailure(ctx context.Context, key string, now time.Time, cfg Config) (State, error)
	// Reserve takes an attempt slot and reports whether it was granted.
	Reserve(ctx context.Context, key string, now time.Time, cfg Config) (State, bool, error)
	// Settle gives back a slot taken by Reserve and applies outcome.
	Settle(ctx context.Context, key string, now time.Time, cfg Config, outcome Outcome) (State, error)
	Reset(ctx context.Context, key string) error
}
