package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/debug"
)

// Logging returns middleware that emits one structured log entry per task
// with the request ID, a truncated task, the duration and the outcome.
// HTTP status codes are logged by the HTTP adapter.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next TaskRunner) TaskRunner {
		return TaskRunnerFunc(func(ctx context.Context, req *api.TaskRequest, w MessageWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.RunTask(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("task", debug.Truncate(req.Text(), 80)),
				slog.Int("libraries", len(req.Libraries)),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "task failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "task completed", attrs...)
			}

			return err
		})
	}
}
