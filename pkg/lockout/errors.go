package lockout

import "errors"

var (
	ErrLockedOut      = errors.New("too many failed attempts, temporarily locked")
	ErrKeyRequired    = errors.New("key is required")
	ErrStoreRequired  = errors.New("store is required")
	ErrInvalidConfig  = errors.New("invalid lockout configuration")
	ErrStoreFailure   = errors.New("lockout store failure")
	ErrUnknownOutcome = errors.New("unknown attempt outcome")
	ErrAttemptSettled = errors.New("attempt already settled")
)
