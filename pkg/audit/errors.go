package audit

import "errors"

var (
	ErrNilStorage      = errors.New("audit: storage is required")
	ErrEventValidation = errors.New("audit: event validation failed")
	ErrStorageFailure  = errors.New("audit: storage failure")
)
