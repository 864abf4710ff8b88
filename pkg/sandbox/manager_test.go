package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/codinit/pkg/api"
)

// shellManager runs code units with sh so the tests do not need Python.
func shellManager(t *testing.T) *Manager {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	runner := &LocalRunner{InstallArgs: []string{"-c", `echo installing "$@"`, "pip"}}
	return NewManager(Options{
		BasePath:    t.TempDir(),
		Isolation:   IsolationNone,
		Interpreter: "sh",
	}, runner)
}

func TestCreateEnvironmentGeneratesName(t *testing.T) {
	m := shellManager(t)
	env, err := m.CreateEnvironment(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateEnvironment() error: %v", err)
	}
	if !api.ValidateEnvironmentName(env.Name) {
		t.Errorf("Name = %q, want 16 alphanumeric characters", env.Name)
	}
	if _, err := os.Stat(env.Root); err != nil {
		t.Errorf("environment root not created: %v", err)
	}
	if env.Interpreter != "sh" {
		t.Errorf("Interpreter = %q, want %q", env.Interpreter, "sh")
	}
}

func TestCreateEnvironmentInvalidName(t *testing.T) {
	m := shellManager(t)
	_, err := m.CreateEnvironment(context.Background(), "../escape")
	var envErr *EnvironmentCreationError
	if !errors.As(err, &envErr) {
		t.Fatalf("error = %v, want *EnvironmentCreationError", err)
	}
}

func TestCreateEnvironmentVenvFailure(t *testing.T) {
	m := NewManager(Options{
		BasePath:    t.TempDir(),
		Isolation:   IsolationVenv,
		Interpreter: "/nonexistent/python3",
	}, nil)
	_, err := m.CreateEnvironment(context.Background(), "broken")
	var envErr *EnvironmentCreationError
	if !errors.As(err, &envErr) {
		t.Fatalf("error = %v, want *EnvironmentCreationError", err)
	}
	if envErr.Name != "broken" {
		t.Errorf("Name = %q, want %q", envErr.Name, "broken")
	}
}

func TestCreateEnvironmentVenv(t *testing.T) {
	if testing.Short() {
		t.Skip("creating a virtualenv is slow")
	}
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	m := NewManager(Options{BasePath: t.TempDir()}, nil)
	env, err := m.CreateEnvironment(context.Background(), "venvtest")
	if err != nil {
		t.Skipf("python3 cannot create virtualenvs here: %v", err)
	}
	if !strings.HasSuffix(env.Interpreter, "venvtest/bin/python3") {
		t.Errorf("Interpreter = %q, want venv python", env.Interpreter)
	}
}

func TestAddDependencyDedup(t *testing.T) {
	m := shellManager(t)
	env, err := m.CreateEnvironment(context.Background(), "deps")
	if err != nil {
		t.Fatalf("CreateEnvironment() error: %v", err)
	}
	for _, d := range []string{"requests", "numpy", "requests"} {
		if err := m.AddDependency(env, d); err != nil {
			t.Fatalf("AddDependency(%q) error: %v", d, err)
		}
	}
	if got, want := env.Dependencies(), []string{"requests", "numpy"}; !slices.Equal(got, want) {
		t.Errorf("Dependencies() = %v, want %v", got, want)
	}

	res, err := m.InstallDependencies(context.Background(), env)
	if err != nil {
		t.Fatalf("InstallDependencies() error: %v", err)
	}
	if res.Kind != Success {
		t.Errorf("install Kind = %v, want success (stderr %q)", res.Kind, res.Stderr)
	}
	if !strings.Contains(res.Stdout, "installing requests numpy") {
		t.Errorf("install stdout = %q, want both packages in one invocation", res.Stdout)
	}
	if err := m.AddDependency(env, "pandas"); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("AddDependency after install = %v, want ErrAlreadyInstalled", err)
	}
}

func TestInstallDependenciesEmpty(t *testing.T) {
	m := NewManager(Options{BasePath: t.TempDir(), Isolation: IsolationNone, Interpreter: "/nonexistent"}, nil)
	env, err := m.CreateEnvironment(context.Background(), "empty")
	if err != nil {
		t.Fatalf("CreateEnvironment() error: %v", err)
	}
	res, err := m.InstallDependencies(context.Background(), env)
	if err != nil {
		t.Fatalf("InstallDependencies() error: %v", err)
	}
	if res.Kind != Success {
		t.Errorf("Kind = %v, want success without running anything", res.Kind)
	}
}

func TestInstallDependenciesFailureIsReported(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	runner := &LocalRunner{InstallArgs: []string{"-c", "echo no such package >&2; exit 1", "pip"}}
	m := NewManager(Options{BasePath: t.TempDir(), Isolation: IsolationNone, Interpreter: "sh"}, runner)
	env, err := m.CreateEnvironment(context.Background(), "failinstall")
	if err != nil {
		t.Fatalf("CreateEnvironment() error: %v", err)
	}
	_ = m.AddDependency(env, "doesnotexist")
	res, err := m.InstallDependencies(context.Background(), env)
	if err != nil {
		t.Fatalf("InstallDependencies() error: %v, want failure in result", err)
	}
	if res.Kind != Failure || res.ExitCode != 1 {
		t.Errorf("result = %v/%d, want failure/1", res.Kind, res.ExitCode)
	}
}

func TestWriteAndRun(t *testing.T) {
	m := shellManager(t)
	env, err := m.CreateEnvironment(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateEnvironment() error: %v", err)
	}

	tests := []struct {
		name       string
		code       string
		timeout    time.Duration
		wantKind   Kind
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{"success", "echo hello", 5 * time.Second, Success, 0, "hello", ""},
		{"failure", "echo oops >&2\nexit 3", 5 * time.Second, Failure, 3, "", "oops"},
		{"timeout", "sleep 5", 200 * time.Millisecond, Timeout, -1, "", "execution timed out after 0.2 seconds"},
		{"fenced", "```python\necho fenced\n```", 5 * time.Second, Success, 0, "fenced", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := m.NewCodeUnit(env)
			res, err := m.WriteAndRun(context.Background(), env, unit, tt.code, tt.timeout)
			if err != nil {
				t.Fatalf("WriteAndRun() error: %v", err)
			}
			if res.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", res.Kind, tt.wantKind)
			}
			if res.ExitCode != tt.wantExit {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.wantExit)
			}
			if !strings.Contains(res.Stdout, tt.wantStdout) {
				t.Errorf("Stdout = %q, want %q", res.Stdout, tt.wantStdout)
			}
			if !strings.Contains(res.Stderr, tt.wantStderr) {
				t.Errorf("Stderr = %q, want %q", res.Stderr, tt.wantStderr)
			}
		})
	}
}

func TestWriteAndRunParentCancelled(t *testing.T) {
	m := shellManager(t)
	env, err := m.CreateEnvironment(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateEnvironment() error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.WriteAndRun(ctx, env, m.NewCodeUnit(env), "echo hi", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write() = %d, %v, want 6, nil", n, err)
	}
	if got := b.String(); !strings.HasPrefix(got, "abcd") || !strings.Contains(got, "truncated") {
		t.Errorf("String() = %q, want truncated abcd", got)
	}
}

func TestRemove(t *testing.T) {
	m := shellManager(t)
	env, err := m.CreateEnvironment(context.Background(), "toremove")
	if err != nil {
		t.Fatalf("CreateEnvironment() error: %v", err)
	}
	if err := m.Remove(env); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if _, err := os.Stat(env.Root); !os.IsNotExist(err) {
		t.Errorf("environment root still exists: %v", err)
	}
}
