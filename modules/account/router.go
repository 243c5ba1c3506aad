package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount in the account module.
// Each service is optional and will only be mounted if provided.
type RouterOptions struct {
	// TwoFactor serves the /2fa routes.
	TwoFactor Mountable

	// Middlewares run in front of every mounted service, typically
	// auth.Middleware so that handlers can read the caller's identity.
	Middlewares []func(http.Handler) http.Handler
}

// Router creates the account module router.
//
// Example:
//
//	tfa := account.NewTwoFactorService(svc, errorHandler, account.WithRateLimiter(bucket))
//
//	r := chi.NewRouter()
//	r.Mount("/", account.Router(account.RouterOptions{
//	    TwoFactor:   tfa,
//	    Middlewares: []func(http.Handler) http.Handler{auth.Middleware(auth.HeaderResolver(), log)},
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(opts.Middlewares...)

	if opts.TwoFactor != nil {
		r.Mount("/2fa", opts.TwoFactor.Handle())
	}

	return r
}
