package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/rhuss/codinit/pkg/api"
)

// Recovery returns middleware that converts a panic in the runner into a
// server error. The server keeps accepting tasks afterwards.
func Recovery() Middleware {
	return func(next TaskRunner) TaskRunner {
		return TaskRunnerFunc(func(ctx context.Context, req *api.TaskRequest, w MessageWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in task runner", "panic", r, "stack", string(debug.Stack()))
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.RunTask(ctx, req, w)
		})
	}
}
