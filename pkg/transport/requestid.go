package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/rhuss/codinit/pkg/api"
)

// RequestID returns middleware that makes sure every task has a request
// ID. An ID already in the context (taken from the X-Request-ID header by
// the HTTP adapter) is kept.
func RequestID() Middleware {
	return func(next TaskRunner) TaskRunner {
		return TaskRunnerFunc(func(ctx context.Context, req *api.TaskRequest, w MessageWriter) error {
			id := RequestIDFromContext(ctx)
			if id == "" {
				id = NewRequestID()
				ctx = ContextWithRequestID(ctx, id)
			}
			return next.RunTask(ctx, req, w)
		})
	}
}

// NewRequestID creates a new unique request ID as a hex string.
func NewRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
