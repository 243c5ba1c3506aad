package lockout

import (
	"context"
	"errors"
	"time"
)

// Outcome of a verification attempt.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	// OutcomeRelease gives a reserved slot back without counting anything.
	OutcomeRelease
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailure:
		return "failure"
	case OutcomeSuccess:
		return "success"
	case OutcomeRelease:
		return "release"
	}
	return "unknown"
}

func (o Outcome) valid() bool {
	return o >= OutcomeFailure && o <= OutcomeRelease
}

// Guard applies the lockout policy on top of a Store.
type Guard struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGuard validates cfg and returns a guard backed by store.
func NewGuard(store Store, cfg Config, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Guard{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the active policy.
func (g *Guard) Config() Config { return g.cfg }

// Check returns ErrLockedOut together with the decision while key is locked.
func (g *Guard) Check(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrKeyRequired
	}
	now := g.now()
	s, err := g.store.Get(ctx, key, now, g.cfg)
	if err != nil {
		return Decision{}, errors.Join(ErrStoreFailure, err)
	}
	d := decide(s, now, g.cfg)
	if d.Locked {
		return d, ErrLockedOut
	}
	return d, nil
}

// RecordFailure counts one failed attempt. The returned decision is locked when
// this failure reached the threshold.
func (g *Guard) RecordFailure(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, ErrKeyRequired
	}
	now := g.now()
	s, err := g.store.RecordFailure(ctx, key, now, g.cfg)
	if err != nil {
		return Decision{}, errors.Join(ErrStoreFailure, err)
	}
	return decide(s, now, g.cfg), nil
}

// Reset clears the attempt record of key.
func (g *Guard) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	if err := g.store.Reset(ctx, key); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

// Reserve admits one attempt on key. It fails with ErrLockedOut while key is
// locked, and also while the failures already recorded plus the attempts still
// in flight could reach the threshold, so a burst of parallel guesses never
// evaluates more than Threshold candidates. The returned Attempt must be settled.
func (g *Guard) Reserve(ctx context.Context, key string) (*Attempt, Decision, error) {
	if key == "" {
		return nil, Decision{}, ErrKeyRequired
	}
	now := g.now()
	s, ok, err := g.store.Reserve(ctx, key, now, g.cfg)
	if err != nil {
		return nil, Decision{}, errors.Join(ErrStoreFailure, err)
	}
	if !ok {
		return nil, refused(s, now, g.cfg), ErrLockedOut
	}
	return &Attempt{guard: g, key: key}, decide(s, now, g.cfg), nil
}

// CheckAndRecord fails with ErrLockedOut while locked; otherwise it records
// the outcome: a failure is counted, a success resets the key.
func (g *Guard) CheckAndRecord(ctx context.Context, key string, outcome Outcome) (Decision, error) {
	if !outcome.valid() {
		return Decision{}, ErrUnknownOutcome
	}
	attempt, d, err := g.Reserve(ctx, key)
	if err != nil {
		return d, err
	}
	return attempt.settle(ctx, outcome)
}

func (g *Guard) settle(ctx context.Context, key string, outcome Outcome) (Decision, error) {
	now := g.now()
	s, err := g.store.Settle(ctx, key, now, g.cfg, outcome)
	if err != nil {
		return Decision{}, errors.Join(ErrStoreFailure, err)
	}
	return decide(s, now, g.cfg), nil
}

// Attempt is a reserved slot. Exactly one of Fail, Succeed or Release takes
// effect; later calls return ErrAttemptSettled, except Release which is a no-op
// so it can be deferred. An Attempt is not safe for concurrent use.
type Attempt struct {
	guard   *Guard
	key     string
	settled bool
}

// Fail counts the attempt as a failure. The decision is locked when it reached
// the threshold.
func (a *Attempt) Fail(ctx context.Context) (Decision, error) {
	return a.settle(ctx, OutcomeFailure)
}

// Succeed clears the failure counter of the key.
func (a *Attempt) Succeed(ctx context.Context) error {
	_, err := a.settle(ctx, OutcomeSuccess)
	return err
}

// Release returns the slot without counting the attempt.
func (a *Attempt) Release(ctx context.Context) error {
	if a == nil || a.settled {
		return nil
	}
	_, err := a.settle(ctx, OutcomeRelease)
	return err
}

func (a *Attempt) settle(ctx context.Context, outcome Outcome) (Decision, error) {
	if a.settled {
		return Decision{}, ErrAttemptSettled
	}
	a.settled = true
	// The slot has to be returned even when the request was cancelled.
	return a.guard.settle(context.WithoutCancel(ctx), a.key, outcome)
}
