package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/twofactor/pkg/logger"
)

type clientIPContextKey struct{}

// ClientIP stores the caller address in the request context. Mount it after
// chi's middleware.RealIP so forwarded addresses are already applied.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := remoteIP(r.RemoteAddr); ip != "" {
			r = r.WithContext(context.WithValue(r.Context(), clientIPContextKey{}, ip))
		}
		next.ServeHTTP(w, r)
	})
}

func ClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPContextKey{}).(string)
	return ip, ok && ip != ""
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id := middleware.GetReqID(ctx)
	return id, id != ""
}

// ClientIPExtractor adds the stored client address to log records.
func ClientIPExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		ip, ok := ClientIPFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.ClientIP(ip), true
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	return ip.String()
}
