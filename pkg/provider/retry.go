package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/codinit/pkg/observability"
)

// RetryOptions configures WithRetry.
type RetryOptions struct {
	MaxRetries      int           // default: 5
	Timeout         time.Duration // per call, default: 120s
	InitialInterval time.Duration // default: 1s
	MaxInterval     time.Duration // default: 30s
	Logger          *slog.Logger
}

func (o *RetryOptions) defaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = time.Second
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// retryGenerator retries transient failures of the wrapped Generator with
// exponential backoff and jitter.
type retryGenerator struct {
	inner Generator
	opts  RetryOptions
}

// WithRetry wraps g so that ErrRateLimited and ErrUnavailable are retried.
// A call that outlives the per-call timeout counts as unavailable. Other
// errors are returned at once. When retries run out the error wraps
// ErrRetriesExhausted and the last transient error.
func WithRetry(g Generator, opts RetryOptions) Generator {
	opts.defaults()
	return &retryGenerator{inner: g, opts: opts}
}

func (r *retryGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	var (
		result   *Result
		attempts int
	)
	op := func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		res, err := r.inner.Generate(callCtx, req)
		switch {
		case err == nil:
			result = res
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case IsTransient(err):
			return err
		case errors.Is(err, context.DeadlineExceeded):
			return fmt.Errorf("%w: call exceeded %s: %w", ErrUnavailable, r.opts.Timeout, err)
		default:
			return backoff.Permanent(err)
		}
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.InitialInterval
	eb.MaxInterval = r.opts.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.opts.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		observability.ProviderRetriesTotal.WithLabelValues(string(req.Role)).Inc()
		r.opts.Logger.Warn("retrying generation",
			"role", req.Role,
			"attempt", attempts,
			"wait", wait,
			"error", err.Error())
	}

	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return result, nil
	}
	if IsTransient(err) {
		r.opts.Logger.Error("generation retries exhausted", "role", req.Role, "attempts", attempts, "error", err.Error())
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
	}
	return nil, err
}
