package auth

import "errors"

var (
	ErrUnauthenticated = errors.New("auth: no authenticated identity")
	ErrForbidden       = errors.New("auth: operation not permitted for role")
	ErrInvalidRole     = errors.New("auth: invalid role")
	ErrInvalidIdentity = errors.New("auth: invalid identity")
)
