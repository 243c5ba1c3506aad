package statemachine

import (
	"context"
	"fmt"
)

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E ~string] func(ctx context.Context, from S, event E, data any) bool

// Action executes side effects during a transition. Returning an error prevents the transition.
type Action[S, E ~string] func(ctx context.Context, from, to S, event E, data any) error

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition[S, E ~string] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // All must pass for transition to proceed
	Actions []Action[S, E] // Executed in order before the new state is returned
}

// Machine is an immutable transition table. It holds no current state: callers
// pass the state they loaded and persist the state Fire returns, which lets one
// Machine serve any number of independently stored entities.
type Machine[S, E ~string] struct {
	transitions map[S]map[E][]Transition[S, E]
}

// New builds a machine from options.
func New[S, E ~string](opts ...Option[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{transitions: make(map[S]map[E][]Transition[S, E])}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on invalid definitions.
func MustNew[S, E ~string](opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

func (m *Machine[S, E]) add(t Transition[S, E]) error {
	if t.From == "" || t.To == "" || t.Event == "" {
		return ErrInvalidTransition
	}
	if _, ok := m.transitions[t.From]; !ok {
		m.transitions[t.From] = make(map[E][]Transition[S, E])
	}
	m.transitions[t.From][t.Event] = append(m.transitions[t.From][t.Event], t)
	return nil
}

// Fire returns the state reached from `from` on event. The first transition whose
// guards all pass is taken; its actions run in order and any action error aborts.
func (m *Machine[S, E]) Fire(ctx context.Context, from S, event E, data any) (S, error) {
	if event == "" {
		return from, ErrInvalidEvent
	}

	t, err := m.find(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}

	return t.To, nil
}

// CanFire reports whether Fire would find a transition, without running actions.
func (m *Machine[S, E]) CanFire(ctx context.Context, from S, event E, data any) bool {
	_, err := m.find(ctx, from, event, data)
	return err == nil
}

// Events lists the events defined for state, ignoring guards.
func (m *Machine[S, E]) Events(from S) []E {
	events := make([]E, 0, len(m.transitions[from]))
	for e := range m.transitions[from] {
		events = append(events, e)
	}
	return events
}

func (m *Machine[S, E]) find(ctx context.Context, from S, event E, data any) (*Transition[S, E], error) {
	candidates := m.transitions[from][event]
	if len(candidates) == 0 {
		return nil, NewErrNoTransitionAvailable(string(from), string(event))
	}

	for i := range candidates {
		if passes(ctx, candidates[i].Guards, from, event, data) {
			return &candidates[i], nil
		}
	}
	return nil, NewErrTransitionRejected(string(from), string(event))
}

func passes[S, E ~string](ctx context.Context, guards []Guard[S, E], from S, event E, data any) bool {
	for _, guard := range guards {
		if !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
