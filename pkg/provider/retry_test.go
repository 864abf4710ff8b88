package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyGenerator fails with errs in order, then succeeds.
type flakyGenerator struct {
	errs  []error
	calls int
}

func (f *flakyGenerator) Generate(ctx context.Context, _ Request) (*Result, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &Result{Code: "ok"}, nil
}

func fastRetry(max int) RetryOptions {
	return RetryOptions{MaxRetries: max, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestWithRetryRecovers(t *testing.T) {
	inner := &flakyGenerator{errs: []error{ErrRateLimited, ErrUnavailable}}
	res, err := WithRetry(inner, fastRetry(5)).Generate(context.Background(), Request{Role: RoleCoder})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Code != "ok" {
		t.Errorf("code = %q, want ok", res.Code)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestWithRetryExhausted(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = ErrRateLimited
	}
	inner := &flakyGenerator{errs: errs}
	_, err := WithRetry(inner, fastRetry(2)).Generate(context.Background(), Request{Role: RoleCoder})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, does not wrap the last transient error", err)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", inner.calls)
	}
}

func TestWithRetryPermanentError(t *testing.T) {
	boom := errors.New("bad request")
	inner := &flakyGenerator{errs: []error{boom}}
	_, err := WithRetry(inner, fastRetry(5)).Generate(context.Background(), Request{Role: RoleCoder})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if errors.Is(err, ErrRetriesExhausted) {
		t.Error("permanent error reported as exhausted retries")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestWithRetryPerCallTimeout(t *testing.T) {
	calls := 0
	slow := GeneratorFunc(func(ctx context.Context, _ Request) (*Result, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	})
	opts := fastRetry(1)
	opts.Timeout = 10 * time.Millisecond
	_, err := WithRetry(slow, opts).Generate(context.Background(), Request{Role: RolePlanner})
	if !errors.Is(err, ErrRetriesExhausted) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want exhausted unavailability", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestWithRetryParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inner := &flakyGenerator{errs: []error{ErrUnavailable, ErrUnavailable}}
	_, err := WithRetry(inner, fastRetry(5)).Generate(ctx, Request{Role: RoleCoder})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
