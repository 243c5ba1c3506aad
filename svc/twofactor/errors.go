package twofactor

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCodeFormat  = errors.New("twofactor: invalid code format")
	ErrInvalidCode        = errors.New("twofactor: invalid code")
	ErrLockedOut          = errors.New("twofactor: too many failed attempts")
	ErrNotEnabled         = errors.New("twofactor: two-factor authentication is not enabled")
	ErrNotPending         = errors.New("twofactor: no pending enrollment")
	ErrAlreadyEnabled     = errors.New("twofactor: two-factor authentication is already enabled")
	ErrConcurrentUpdate   = errors.New("twofactor: profile was modified concurrently")
	ErrProfileNotFound    = errors.New("twofactor: profile not found")
	ErrAccountNotFound    = errors.New("twofactor: account not found")
	ErrNotPermitted       = errors.New("twofactor: caller may not manage two-factor authentication")
	ErrStorageUnavailable = errors.New("twofactor: storage unavailable")
	ErrSecretUnavailable  = errors.New("twofactor: stored secret cannot be read")
	ErrEntropy            = errors.New("twofactor: random source failure")
	ErrInvalidConfig      = errors.New("twofactor: invalid config")
)

// Kind classifies an Error for callers that map failures to transport responses.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInputValidation
	KindInvalidCode
	KindStateConflict
	KindForbidden
	KindLockedOut
	KindPersistence
	KindEntropy
)

func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "input_validation"
	case KindInvalidCode:
		return "invalid_code"
	case KindStateConflict:
		return "state_conflict"
	case KindForbidden:
		return "forbidden"
	case KindLockedOut:
		return "locked_out"
	case KindPersistence:
		return "persistence"
	case KindEntropy:
		return "entropy"
	default:
		return "unknown"
	}
}

// Retryable reports whether repeating the whole operation may succeed.
func (k Kind) Retryable() bool {
	return k == KindPersistence
}

// Error is returned by every Service operation.
type Error struct {
	Kind       Kind
	Op         string
	Err        error
	RetryAfter time.Duration // set for KindLockedOut
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfter returns how long a locked-out caller has to wait, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func newError(op string, kind Kind, errs ...error) *Error {
	return &Error{Op: op, Kind: kind, Err: errors.Join(errs...)}
}

func persistenceError(op string, err error) *Error {
	return newError(op, KindPersistence, ErrStorageUnavailable, err)
}
