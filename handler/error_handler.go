package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/twofactor/binder"
	"github.com/dmitrymomot/twofactor/pkg/logger"
)

// ErrorMapper translates a domain error into an HTTPError. It reports false for
// errors it does not recognise.
type ErrorMapper func(err error) (HTTPError, bool)

type errorHandlerConfig struct {
	mappers []ErrorMapper
}

type ErrorHandlerOption func(*errorHandlerConfig)

// WithErrorMapper adds a mapper consulted before the built-in classification.
func WithErrorMapper(m ErrorMapper) ErrorHandlerOption {
	return func(c *errorHandlerConfig) {
		if m != nil {
			c.mappers = append(c.mappers, m)
		}
	}
}

// Classify resolves err to the HTTPError that will be rendered.
func Classify(err error, mappers ...ErrorMapper) HTTPError {
	for _, m := range mappers {
		if httpErr, ok := m(err); ok {
			return httpErr
		}
	}

	var httpErr HTTPError
	var valErr ValidationError
	switch {
	case errors.As(err, &httpErr):
		return httpErr
	case errors.As(err, &valErr):
		return NewHTTPError(http.StatusBadRequest, "validation_error", valErr.Error())
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return ErrUnsupportedMediaType
	case errors.Is(err, binder.ErrBodyTooLarge):
		return ErrRequestEntityTooLarge
	case errors.Is(err, binder.ErrInvalidJSON):
		return ErrBadRequest.WithMessage("malformed JSON body")
	default:
		return ErrInternalServerError
	}
}

// NewErrorHandler logs the error with request context and renders it as a JSON
// envelope. Client errors are logged at warn level and server errors at error level.
func NewErrorHandler(log *slog.Logger, opts ...ErrorHandlerOption) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	var cfg errorHandlerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		httpErr := Classify(err, cfg.mappers...)

		level := slog.LevelError
		if httpErr.Code < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", httpErr.Code),
			logger.Method(r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		// Validation errors render with their per-field details.
		var resp Response = JSONError(httpErr)
		var valErr ValidationError
		if errors.As(err, &valErr) {
			resp = JSONError(valErr)
		}
		if renderErr := resp.Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error response",
				logger.Error(renderErr),
				logger.Component("error_handler"),
			)
		}
	}
}

// RequestIDExtractor adds chi's request id to every log record written with the
// request context.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id := middleware.GetReqID(ctx)
		if id == "" {
			return slog.Attr{}, false
		}
		return logger.RequestID(id), true
	}
}
