package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

// Runner installs packages into an environment and executes code units.
// The context passed to Run carries the execution deadline.
type Runner interface {
	Name() string
	Install(ctx context.Context, env *Environment, deps []string) (Result, error)
	Run(ctx context.Context, env *Environment, unit *CodeUnit) (Result, error)
}

// DefaultInstallArgs are the interpreter arguments placed before the
// package names on install.
var DefaultInstallArgs = []string{"-m", "pip", "install"}

// defaultMaxOutput caps captured stdout and stderr per stream.
const defaultMaxOutput = 64 * 1024

// Ensure LocalRunner implements Runner.
var _ Runner = (*LocalRunner)(nil)

// LocalRunner runs the environment interpreter as a local subprocess.
type LocalRunner struct {
	// InstallArgs replaces DefaultInstallArgs when set.
	InstallArgs []string
	// MaxOutput limits the captured bytes per stream. Zero means 64 KiB.
	MaxOutput int
}

// Name returns "local".
func (r *LocalRunner) Name() string { return "local" }

// Install runs "<interpreter> -m pip install <deps...>" in one shot. A
// non-zero exit is reported in the Result, not as an error.
func (r *LocalRunner) Install(ctx context.Context, env *Environment, deps []string) (Result, error) {
	args := r.InstallArgs
	if len(args) == 0 {
		args = DefaultInstallArgs
	}
	argv := append(append([]string{}, args...), deps...)
	cmd := exec.CommandContext(ctx, env.Interpreter, argv...)
	cmd.Dir = env.Root
	return r.exec(ctx, cmd)
}

// Run executes "<interpreter> <file>" in the directory of the unit.
func (r *LocalRunner) Run(ctx context.Context, env *Environment, unit *CodeUnit) (Result, error) {
	cmd := exec.CommandContext(ctx, env.Interpreter, unit.Path())
	cmd.Dir = filepath.Dir(unit.Path())
	return r.exec(ctx, cmd)
}

func (r *LocalRunner) exec(ctx context.Context, cmd *exec.Cmd) (Result, error) {
	max := r.MaxOutput
	if max <= 0 {
		max = defaultMaxOutput
	}
	stdout := &cappedBuffer{max: max}
	stderr := &cappedBuffer{max: max}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Children that inherit the pipes must not block Wait past the deadline.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		res.Kind = Timeout
		res.ExitCode = -1
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Kind = Success
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		res.Kind = Classify(res.ExitCode, false)
	default:
		return res, fmt.Errorf("run %s: %w", cmd.Path, err)
	}
	return res, nil
}

// cappedBuffer keeps the first max bytes written and drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n...[output truncated]"
	}
	return b.buf.String()
}
