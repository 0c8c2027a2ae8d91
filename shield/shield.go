// Package shield holds the HTTP middleware in front of the remote-control
// endpoint: security headers, a body cap, per-client rate limiting, and a
// trace id with a request-scoped logger.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.RemoteStack(limiter) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// MaxRemoteBody caps remote-control request bodies.
const MaxRemoteBody = 64 * 1024

// RemoteStack returns the middleware stack of the remote-control server, in
// order: HeadToGet, SecurityHeaders, MaxBody, TraceID, then the rate limiter
// when rl is non-nil.
func RemoteStack(rl *RateLimiter) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxBody(MaxRemoteBody),
		TraceID,
	}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return stack
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
