package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/google/uuid"

	"github.com/dmitrymomot/twofactor/handler"
	"github.com/dmitrymomot/twofactor/pkg/logger"
)

// Resolver turns an incoming request into an Identity. It returns
// ErrUnauthenticated when the request carries no session.
type Resolver interface {
	ResolveIdentity(r *http.Request) (Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) (Identity, error)

func (f ResolverFunc) ResolveIdentity(r *http.Request) (Identity, error) { return f(r) }

// Headers set by the upstream gateway after it validated the session.
const (
	HeaderAccountID = "X-Account-ID"
	HeaderEmail     = "X-Account-Email"
	HeaderRole      = "X-Account-Role"
)

// HeaderResolver reads the identity from trusted gateway headers. Only deploy it
// behind a proxy that strips these headers from client requests.
func HeaderResolver() Resolver {
	return ResolverFunc(func(r *http.Request) (Identity, error) {
		rawID := r.Header.Get(HeaderAccountID)
		if rawID == "" {
			return Identity{}, ErrUnauthenticated
		}
		accountID, err := uuid.Parse(rawID)
		if err != nil {
			return Identity{}, errors.Join(ErrInvalidIdentity, err)
		}
		role, err := ParseRole(r.Header.Get(HeaderRole))
		if err != nil {
			return Identity{}, errors.Join(ErrInvalidIdentity, err)
		}
		email := r.Header.Get(HeaderEmail)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return Identity{}, fmt.Errorf("%w: email: %v", ErrInvalidIdentity, err)
			}
		}
		return Identity{AccountID: accountID, Email: email, Role: role}, nil
	})
}

// Middleware resolves the identity once per request and stores it in the context.
// Requests without a session pass through unauthenticated; RequireIdentity guards
// routes that need one.
func Middleware(resolver Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.ResolveIdentity(r)
			switch {
			case err == nil:
				r = r.WithContext(WithIdentity(r.Context(), id))
			case errors.Is(err, ErrUnauthenticated):
			default:
				log.WarnContext(r.Context(), "identity rejected",
					logger.Error(err),
					logger.Component("auth"),
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIdentity answers 401 when no identity was resolved and 403 when the
// identity may not manage second factors.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			_ = handler.JSONError(handler.ErrUnauthorized).Render(w, r)
			return
		}
		if !id.CanManageTwoFactor() {
			_ = handler.JSONError(handler.ErrForbidden).Render(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
