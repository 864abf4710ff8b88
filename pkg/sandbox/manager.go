package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/observability"
)

// Isolation selects how environments are created.
type Isolation string

const (
	// IsolationVenv creates a Python virtualenv per environment.
	IsolationVenv Isolation = "venv"
	// IsolationNone creates a plain directory and uses the configured
	// interpreter as is.
	IsolationNone Isolation = "none"
)

// Options configures a Manager.
type Options struct {
	BasePath    string    // default: "/tmp"
	Isolation   Isolation // default: venv
	Interpreter string    // default: "python3"
	FileName    string    // default: "magic_code.py"
}

// Manager creates environments and runs code in them through a Runner.
type Manager struct {
	opts   Options
	runner Runner
	logger *slog.Logger
}

// ManagerOption configures optional Manager settings.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager. A nil runner means a LocalRunner.
func NewManager(opts Options, runner Runner, options ...ManagerOption) *Manager {
	if opts.BasePath == "" {
		opts.BasePath = "/tmp"
	}
	if opts.Isolation == "" {
		opts.Isolation = IsolationVenv
	}
	if opts.Interpreter == "" {
		opts.Interpreter = "python3"
	}
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	if runner == nil {
		runner = &LocalRunner{}
	}
	m := &Manager{opts: opts, runner: runner, logger: slog.Default()}
	for _, o := range options {
		o(m)
	}
	return m
}

// Runner returns the runner executing code for this manager.
func (m *Manager) Runner() Runner { return m.runner }

// CreateEnvironment sets up a new environment under the base path. An
// empty name is replaced by a random 16 character identifier.
func (m *Manager) CreateEnvironment(ctx context.Context, name string) (*Environment, error) {
	if name == "" {
		name = api.NewEnvironmentName()
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, &EnvironmentCreationError{Name: name, Err: errors.New("invalid environment name")}
	}
	root := filepath.Join(m.opts.BasePath, name)
	env := &Environment{Name: name, Root: root}

	switch m.opts.Isolation {
	case IsolationVenv:
		m.logger.Info("creating virtualenv", "path", root)
		cmd := exec.CommandContext(ctx, m.opts.Interpreter, "-m", "venv", root)
		if out, err := cmd.CombinedOutput(); err != nil {
			return nil, &EnvironmentCreationError{
				Name: name,
				Err:  fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))),
			}
		}
		env.Interpreter = filepath.Join(root, "bin", "python3")
	case IsolationNone:
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, &EnvironmentCreationError{Name: name, Err: err}
		}
		env.Interpreter = m.opts.Interpreter
	default:
		return nil, &EnvironmentCreationError{Name: name, Err: fmt.Errorf("unknown isolation %q", m.opts.Isolation)}
	}

	debug.Log("sandbox", "environment created", "name", name, "interpreter", env.Interpreter)
	return env, nil
}

// NewCodeUnit returns an empty code unit stored in the environment root.
func (m *Manager) NewCodeUnit(env *Environment) *CodeUnit {
	return NewCodeUnit(env.Root, m.opts.FileName)
}

// AddDependency registers a package on env.
func (m *Manager) AddDependency(env *Environment, name string) error {
	m.logger.Info("adding dependency", "name", name, "env", env.Name)
	return env.AddDependency(name)
}

// InstallDependencies installs every registered package in one invocation.
// An empty dependency set succeeds without running anything. Install
// failures are reported through the Result.
func (m *Manager) InstallDependencies(ctx context.Context, env *Environment) (Result, error) {
	deps := env.Dependencies()
	defer env.markInstalled()
	if len(deps) == 0 {
		return Result{Kind: Success}, nil
	}

	m.logger.Info("installing dependencies", "env", env.Name, "dependencies", deps)
	res, err := m.runner.Install(ctx, env, deps)
	if err != nil {
		observability.DependencyInstallsTotal.WithLabelValues("error").Inc()
		return res, fmt.Errorf("install dependencies: %w", err)
	}
	if res.Failed() {
		observability.DependencyInstallsTotal.WithLabelValues("failed").Inc()
		m.logger.Error("dependency install failed", "dependencies", deps, "exit_code", res.ExitCode)
	} else {
		observability.DependencyInstallsTotal.WithLabelValues("ok").Inc()
	}
	return res, nil
}

// WriteAndRun overwrites unit with code and executes it under timeout. A
// run that exceeds the timeout yields a Timeout result with exit code -1
// and a note of the limit in Stderr.
// Cancellation of ctx itself is returned as an error.
func (m *Manager) WriteAndRun(ctx context.Context, env *Environment, unit *CodeUnit, code string, timeout time.Duration) (Result, error) {
	if err := unit.Overwrite(code); err != nil {
		return Result{}, err
	}
	if err := unit.TrimFences(); err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := m.runner.Run(runCtx, env, unit)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		return res, err
	}
	if res.Kind == Timeout || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.markTimeout(timeout)
	}

	observability.SandboxRunsTotal.WithLabelValues(m.runner.Name(), res.Kind.String()).Inc()
	observability.SandboxRunDuration.WithLabelValues(m.runner.Name()).Observe(res.Duration.Seconds())
	debug.Log("sandbox", "run complete",
		"env", env.Name, "kind", res.Kind.String(), "exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// Remove deletes the environment directory.
func (m *Manager) Remove(env *Environment) error {
	if env == nil || env.Root == "" || filepath.Dir(env.Root) != filepath.Clean(m.opts.BasePath) {
		return nil
	}
	return os.RemoveAll(env.Root)
}
