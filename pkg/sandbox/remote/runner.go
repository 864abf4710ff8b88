package remote

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/sandbox"
)

// Acquirer abstracts sandbox acquisition. Implementations exist for a
// static URL and for Kubernetes SandboxClaims.
type Acquirer interface {
	// Acquire returns a sandbox URL to use for execution.
	// The release function must be called after execution to clean up.
	Acquire(ctx context.Context) (sandboxURL string, release func(), err error)
}

// StaticAcquirer returns a fixed sandbox URL.
type StaticAcquirer struct {
	URL string
}

// Acquire returns the configured URL and a no-op release.
func (a StaticAcquirer) Acquire(_ context.Context) (string, func(), error) {
	return a.URL, func() {}, nil
}

// Ensure Runner implements sandbox.Runner.
var _ sandbox.Runner = (*Runner)(nil)

// Limits sent when the context carries no deadline.
const (
	defaultTimeout        = 30 * time.Second
	defaultInstallTimeout = 5 * time.Minute
)

// Runner executes code units on a sandbox server.
type Runner struct {
	acquirer Acquirer
	client   *Client
}

// NewRunner returns a Runner that obtains sandbox URLs from acquirer.
func NewRunner(acquirer Acquirer) *Runner {
	return &Runner{acquirer: acquirer, client: NewClient()}
}

// Name returns "remote".
func (r *Runner) Name() string { return "remote" }

// Install asks a sandbox to install deps and reports the installer's
// outcome. Sandboxes are throwaway, so every Run installs the environment
// dependencies again. Install tells the caller up front which packages
// will not install.
func (r *Runner) Install(ctx context.Context, env *sandbox.Environment, deps []string) (sandbox.Result, error) {
	if len(deps) == 0 {
		return sandbox.Result{Kind: sandbox.Success}, nil
	}
	url, release, err := r.acquirer.Acquire(ctx)
	if err != nil {
		return sandbox.Result{}, fmt.Errorf("acquire sandbox: %w", err)
	}
	defer release()

	debug.Log("sandbox", "remote install", "url", url, "env", env.Name, "deps", deps)
	start := time.Now()
	resp, err := r.client.Install(ctx, url, &InstallRequest{
		Requirements:   deps,
		TimeoutSeconds: timeoutSeconds(ctx, defaultInstallTimeout),
	})
	if err != nil {
		if ctx.Err() != nil {
			return sandbox.Result{Kind: sandbox.Timeout, ExitCode: -1, Duration: time.Since(start)}, nil
		}
		return sandbox.Result{}, err
	}
	return toResult(resp), nil
}

// timeoutSeconds derives the server-side limit from the context deadline.
func timeoutSeconds(ctx context.Context, fallback time.Duration) int {
	timeout := fallback
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return max(int(math.Ceil(timeout.Seconds())), 1)
}

func toResult(resp *ExecuteResponse) sandbox.Result {
	res := sandbox.Result{
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
		ExitCode: resp.ExitCode,
		Duration: time.Duration(resp.ExecutionTimeMs) * time.Millisecond,
	}
	res.Kind = sandbox.Classify(resp.ExitCode, resp.Status == StatusTimeout)
	if resp.Status == StatusError && res.Kind == sandbox.Success {
		res.Kind = sandbox.Failure
	}
	if res.Kind == sandbox.Timeout {
		res.ExitCode = -1
	}
	return res
}

// Run sends the unit's code and the environment dependencies to a sandbox.
// The execution timeout is derived from the context deadline.
func (r *Runner) Run(ctx context.Context, env *sandbox.Environment, unit *sandbox.CodeUnit) (sandbox.Result, error) {
	url, release, err := r.acquirer.Acquire(ctx)
	if err != nil {
		return sandbox.Result{}, fmt.Errorf("acquire sandbox: %w", err)
	}
	defer release()

	seconds := timeoutSeconds(ctx, defaultTimeout)
	debug.Log("sandbox", "remote execute", "url", url, "env", env.Name, "timeout_s", seconds)

	start := time.Now()
	resp, err := r.client.Execute(ctx, url, &ExecuteRequest{
		Code:           unit.Content(),
		TimeoutSeconds: seconds,
		Requirements:   env.Dependencies(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return sandbox.Result{Kind: sandbox.Timeout, ExitCode: -1, Duration: time.Since(start)}, nil
		}
		return sandbox.Result{}, err
	}

	return toResult(resp), nil
}
