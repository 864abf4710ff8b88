package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/provider"
)

type collected struct{ msgs []api.StreamMessage }

func (c *collected) emit(_ context.Context, m api.StreamMessage) { c.msgs = append(c.msgs, m) }

func TestSessionExecuteHelloWorld(t *testing.T) {
	h := newHarness(t)
	h.gen.steps = []string{"import nothing", "print hello"}
	h.gen.deps = []string{"requests", "random"}
	c := Components{Generator: h.gen, Normalizer: h.norm, Validator: h.validator, Sandbox: h.manager,
		Retriever: staticRetriever{docs: "print(*objects) writes to stdout"}}

	s := NewSession(c, testConfig())
	defer s.Close()

	var out collected
	log, err := s.Execute(context.Background(), 7, &api.TaskRequest{Prompt: "print hello"}, out.emit)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if log.TaskID != 7 || log.Task != "print hello" {
		t.Errorf("TaskID/Task = %d/%q", log.TaskID, log.Task)
	}
	if !log.Succeeded || log.Metric != 0 {
		t.Errorf("Succeeded=%v Metric=%d, want true/0", log.Succeeded, log.Metric)
	}
	if got := log.InitialCode.DocumentationScraping.NumTokens; got != 4 {
		t.Errorf("NumTokens = %d, want 4", got)
	}
	if got := log.InitialCode.Dependencies.Dependencies; len(got) != 1 || got[0] != "requests" {
		t.Errorf("Dependencies = %v, want [requests]", got)
	}
	if log.InitialCode.CodingAgent.GeneratedCode != "print('hello')" {
		t.Errorf("initial code = %q", log.InitialCode.CodingAgent.GeneratedCode)
	}
	if len(h.runner.installs) != 1 || strings.Join(h.runner.installs[0], ",") != "requests" {
		t.Errorf("installs = %v, want one install of requests", h.runner.installs)
	}

	// plan, initial code, one per attempt, final
	if len(out.msgs) != 4 {
		t.Fatalf("got %d messages, want 4: %+v", len(out.msgs), out.msgs)
	}
	if out.msgs[0].Plan != "import nothing\nprint hello" || out.msgs[0].Code != "" {
		t.Errorf("plan message = %+v", out.msgs[0])
	}
	if out.msgs[1].Code != "print('hello')" {
		t.Errorf("code message = %+v", out.msgs[1])
	}
	final := out.msgs[3]
	if !final.IsFinal || !strings.HasPrefix(final.Error, "Task Success") {
		t.Errorf("final message = %+v", final)
	}
	for _, m := range out.msgs[:3] {
		if m.IsFinal {
			t.Errorf("non-terminal message marked final: %+v", m)
		}
	}
}

func TestSessionUsesSourceCode(t *testing.T) {
	h := newHarness(t)
	s := NewSession(h.components(), testConfig())
	defer s.Close()

	_, err := s.Execute(context.Background(), 0, &api.TaskRequest{
		Task:       "extend the script",
		SourceCode: "import os\nprint(os.getcwd())",
	}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	req, ok := h.gen.last(provider.RoleCoder)
	if !ok {
		t.Fatal("coder was not called")
	}
	if !strings.Contains(req.Inputs[provider.InputSourceCode], "print(os.getcwd())") {
		t.Errorf("coder source_code = %q", req.Inputs[provider.InputSourceCode])
	}
}

func TestSessionSkipsInstallWithoutExecution(t *testing.T) {
	h := newHarness(t)
	h.gen.deps = []string{"pandas"}
	cfg := testConfig()
	cfg.ExecuteCode = false

	s := NewSession(h.components(), cfg)
	defer s.Close()
	log, err := s.Execute(context.Background(), 0, &api.TaskRequest{Task: "load a csv"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(h.runner.installs) != 0 {
		t.Errorf("installs = %v, want none", h.runner.installs)
	}
	if len(h.runner.runs) != 0 {
		t.Errorf("runs = %d, want none", len(h.runner.runs))
	}
	if got := log.InitialCode.Dependencies.Dependencies; len(got) != 1 {
		t.Errorf("Dependencies = %v, want [pandas]", got)
	}
}

func TestSessionPlannerError(t *testing.T) {
	h := newHarness(t)
	h.gen.failRole = provider.RolePlanner
	h.gen.failErr = provider.ErrUnavailable

	s := NewSession(h.components(), testConfig())
	defer s.Close()
	log, err := s.Execute(context.Background(), 0, &api.TaskRequest{Task: "x"}, nil)
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
	if log == nil || log.Task != "x" {
		t.Errorf("log = %+v, want a partial log", log)
	}
}

func TestSessionPlannerRawTextFallback(t *testing.T) {
	h := newHarness(t)
	h.gen.steps = nil
	gen := provider.GeneratorFunc(func(ctx context.Context, req provider.Request) (*provider.Result, error) {
		if req.Role == provider.RolePlanner {
			return &provider.Result{RawText: "  just print it  "}, nil
		}
		return h.gen.Generate(ctx, req)
	})
	c := h.components()
	c.Generator = gen

	s := NewSession(c, testConfig())
	defer s.Close()
	log, err := s.Execute(context.Background(), 0, &api.TaskRequest{Task: "x"}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := log.InitialCode.GeneratedPlan.Plan; len(got) != 1 || got[0] != "just print it" {
		t.Errorf("Plan = %q", got)
	}
}

func TestInstallDependencies(t *testing.T) {
	h := newHarness(t)
	h.runner.installFails = 2
	cfg := testConfig()
	cfg.DependencyInstallAttempts = 3

	s := NewSession(h.components(), cfg)
	defer s.Close()

	msg, err := s.InstallDependencies(context.Background(), []string{"numpy", "numpy", "scipy"})
	if err != nil {
		t.Fatalf("InstallDependencies: %v", err)
	}
	if len(h.runner.installs) != 3 {
		t.Errorf("install ran %d times, want 3", len(h.runner.installs))
	}
	if !strings.HasPrefix(msg, "dependency installer results: dependencies=[numpy scipy], return_code=0") {
		t.Errorf("summary = %q", msg)
	}
}

func TestInstallDependenciesGivesUp(t *testing.T) {
	h := newHarness(t)
	h.runner.installFails = 10
	cfg := testConfig()
	cfg.DependencyInstallAttempts = 2

	s := NewSession(h.components(), cfg)
	defer s.Close()

	msg, err := s.InstallDependencies(context.Background(), []string{"nonexistent-pkg"})
	if err != nil {
		t.Fatalf("InstallDependencies: %v", err)
	}
	if len(h.runner.installs) != 2 {
		t.Errorf("install ran %d times, want 2", len(h.runner.installs))
	}
	if !strings.Contains(msg, "return_code=1") || !strings.Contains(msg, "No matching distribution") {
		t.Errorf("summary = %q, want the failing install", msg)
	}
}

func TestInstallNoDependencies(t *testing.T) {
	h := newHarness(t)
	s := NewSession(h.components(), testConfig())
	msg, err := s.InstallDependencies(context.Background(), nil)
	if err != nil || msg != "no dependencies to install." {
		t.Errorf("got %q, %v", msg, err)
	}
	if s.Environment() != nil {
		t.Error("no environment should be created for an empty install")
	}
}

func TestSessionClose(t *testing.T) {
	h := newHarness(t)
	s := NewSession(h.components(), testConfig())
	if _, err := s.Execute(context.Background(), 0, &api.TaskRequest{Task: "x"}, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	root := s.Environment().Root
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("environment root missing: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("environment root still exists after Close")
	}
	if s.Environment() != nil {
		t.Error("Environment() should be nil after Close")
	}
}
