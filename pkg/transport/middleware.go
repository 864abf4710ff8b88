package transport

import (
	"context"
	"slices"
)

// Middleware decorates a TaskRunner.
type Middleware func(TaskRunner) TaskRunner

// Chain composes middleware so that the first one listed sees each task
// first: Chain(a, b)(r) is a(b(r)).
func Chain(mw ...Middleware) Middleware {
	return func(r TaskRunner) TaskRunner {
		for _, m := range slices.Backward(mw) {
			r = m(r)
		}
		return r
	}
}

type requestIDKey struct{}

// ContextWithRequestID attaches the ID used for logs, cancellation and the
// X-Request-ID response header.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns "" when no ID is attached.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
