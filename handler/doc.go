// Package handler provides type-safe JSON HTTP handlers.
//
// A HandlerFunc receives a Context and a request value already decoded by the
// binders passed to Wrap, and returns a Response. Errors from binding, from the
// handler (returned through Error) and from rendering end up in the
// ErrorHandler, which logs them and writes the JSON envelope:
//
//	{"error": {"code": "invalid_code", "message": "..."}}
//
// Domain packages plug their error kinds in with WithErrorMapper so transport
// status codes stay out of the domain.
//
//	errHandler := handler.NewErrorHandler(log, handler.WithErrorMapper(mapTwoFactorError))
//	r.Post("/2fa/verify", handler.Wrap(verify,
//		handler.WithBinders[handler.Context, verifyRequest](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, verifyRequest](errHandler),
//	))
package handler
