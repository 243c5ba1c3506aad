package twofactor

import (
	"github.com/dmitrymomot/twofactor/pkg/statemachine"
)

// newLifecycle returns the profile lifecycle:
//
//	unset    --start-->      pending
//	disabled --start-->      pending
//	pending  --start-->      pending   (restart discards the old secret)
//	pending  --confirm-->    enabled
//	enabled  --disable-->    disabled
//	enabled  --regenerate--> enabled
func newLifecycle() *statemachine.Machine[Status, Event] {
	return statemachine.MustNew(
		statemachine.WithTransition[Status, Event](StatusUnset, StatusPending, EventStart),
		statemachine.WithTransition[Status, Event](StatusDisabled, StatusPending, EventStart),
		statemachine.WithTransition[Status, Event](StatusPending, StatusPending, EventStart),
		statemachine.WithTransition[Status, Event](StatusPending, StatusEnabled, EventConfirm),
		statemachine.WithTransition[Status, Event](StatusEnabled, StatusDisabled, EventDisable),
		statemachine.WithTransition[Status, Event](StatusEnabled, StatusEnabled, EventRegenerate),
	)
}

// conflictFor names the state error a rejected event surfaces as.
func conflictFor(event Event) error {
	switch event {
	case EventStart:
		return ErrAlreadyEnabled
	case EventConfirm:
		return ErrNotPending
	default:
		return ErrNotEnabled
	}
}
