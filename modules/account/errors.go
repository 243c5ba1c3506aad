package account

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/twofactor/handler"
	"github.com/dmitrymomot/twofactor/svc/twofactor"
)

var (
	errInvalidCodeFormat = handler.NewHTTPError(http.StatusBadRequest, "invalid_code_format",
		"Enter the 6-digit code from your authenticator app or a backup code.")
	errInvalidCode = handler.NewHTTPError(http.StatusUnauthorized, "invalid_code",
		"The code is not valid.")
	errLockedOut = handler.NewHTTPError(http.StatusTooManyRequests, "locked_out",
		"Too many failed attempts. Try again later.")
	errNotEnabled = handler.NewHTTPError(http.StatusConflict, "not_enabled",
		"Two-factor authentication is not enabled.")
	errNotPending = handler.NewHTTPError(http.StatusConflict, "not_pending",
		"There is no enrollment waiting for confirmation.")
	errAlreadyEnabled = handler.NewHTTPError(http.StatusConflict, "already_enabled",
		"Two-factor authentication is already enabled.")
	errConcurrentUpdate = handler.NewHTTPError(http.StatusConflict, "concurrent_update",
		"Your two-factor settings changed in another session. Reload and try again.")
	errTemporarilyUnavailable = handler.ErrServiceUnavailable.WithMessage("Temporarily unavailable, please retry.")
)

// MapTwoFactorError translates twofactor errors to HTTP errors. Wrong codes get one
// generic answer whichever factor was tried; only lockout reveals its condition.
func MapTwoFactorError(err error) (handler.HTTPError, bool) {
	var e *twofactor.Error
	if !errors.As(err, &e) {
		return handler.HTTPError{}, false
	}

	switch e.Kind {
	case twofactor.KindInputValidation:
		return errInvalidCodeFormat, true
	case twofactor.KindInvalidCode:
		return errInvalidCode, true
	case twofactor.KindForbidden:
		return handler.ErrForbidden, true
	case twofactor.KindLockedOut:
		return errLockedOut.WithRetryAfter(e.RetryAfter), true
	case twofactor.KindStateConflict:
		switch {
		case errors.Is(err, twofactor.ErrNotEnabled):
			return errNotEnabled, true
		case errors.Is(err, twofactor.ErrNotPending):
			return errNotPending, true
		case errors.Is(err, twofactor.ErrAlreadyEnabled):
			return errAlreadyEnabled, true
		default:
			return errConcurrentUpdate, true
		}
	case twofactor.KindPersistence:
		return errTemporarilyUnavailable, true
	default:
		return handler.ErrInternalServerError, true
	}
}
