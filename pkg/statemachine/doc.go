// Package statemachine provides a small, generic finite state machine.
//
// A Machine is a transition table keyed by string-like state and event types.
// It is immutable after construction and keeps no current state, so it is safe
// to share: each Fire call receives the state the caller loaded and returns the
// state to persist.
//
//	type Status string
//	type Event string
//
//	m := statemachine.MustNew(
//	    statemachine.WithTransition[Status, Event]("draft", "published", "publish"),
//	)
//	next, err := m.Fire(ctx, "draft", "publish", nil)
//
// Guards decide between several transitions for the same state and event; the
// first transition whose guards all pass wins. Actions run before Fire returns and
// can veto the transition by returning an error.
//
// Fire reports *ErrNoTransitionAvailable when the table has no entry for the pair
// and *ErrTransitionRejected when every candidate was blocked by a guard.
package statemachine
