// Package requestcontext provides transport-independent accessors for
// request-scoped values. Middleware sets them, services read them, and tests
// inject them without running an HTTP stack.
package requestcontext

import (
	"context"
	"time"
)

type (
	walletIDKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// WalletID retrieves the authenticated wallet address from the context.
// Returns "" if not set.
func WalletID(ctx context.Context) string {
	if w, ok := ctx.Value(walletIDKey{}).(string); ok {
		return w
	}
	return ""
}

// WithWalletID injects an authenticated wallet address into the context.
func WithWalletID(ctx context.Context, walletID string) context.Context {
	return context.WithValue(ctx, walletIDKey{}, walletID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now retrieves the request-scoped time from context, falling back to
// time.Now() for non-HTTP contexts (workers, tests that don't care).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time. Used by middleware and by service
// tests that need deterministic clocks.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
