package engine

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/sandbox"
)

// fakeRunner executes nothing. Run decides the outcome from the code.
type fakeRunner struct {
	mu           sync.Mutex
	run          func(code string) sandbox.Result
	runs         []string
	installs     [][]string
	installFails int // failing installs before the first success
}

func (r *fakeRunner) Name() string { return "fake" }

func (r *fakeRunner) Install(_ context.Context, _ *sandbox.Environment, deps []string) (sandbox.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installs = append(r.installs, deps)
	if r.installFails > 0 {
		r.installFails--
		return sandbox.Result{Kind: sandbox.Failure, ExitCode: 1, Stderr: "No matching distribution found"}, nil
	}
	return sandbox.Result{Kind: sandbox.Success, Stdout: "Successfully installed " + strings.Join(deps, " ")}, nil
}

func (r *fakeRunner) Run(_ context.Context, _ *sandbox.Environment, unit *sandbox.CodeUnit) (sandbox.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := unit.Content()
	r.runs = append(r.runs, code)
	if r.run == nil {
		return sandbox.Result{Kind: sandbox.Success, Stdout: "hello"}, nil
	}
	return r.run(code), nil
}

func alwaysFails(string) sandbox.Result {
	return sandbox.Result{Kind: sandbox.Failure, ExitCode: 1, Stderr: "NameError: name 'foo' is not defined"}
}

// fakeValidator lints the file content with fn.
type fakeValidator struct {
	mu    sync.Mutex
	fn    func(code string) []string
	err   error
	calls int
}

func (v *fakeValidator) Lint(_ context.Context, path string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if v.fn == nil {
		return nil, nil
	}
	return v.fn(string(data)), nil
}

// flagsUndefined reports one diagnostic while the code calls undefined_fn.
func flagsUndefined(code string) []string {
	if strings.Contains(code, "undefined_fn") {
		return []string{"1:0: E0602: Undefined variable 'undefined_fn' (undefined-variable)"}
	}
	return nil
}

type identityNormalizer struct{ calls int }

func (n *identityNormalizer) NormalizeAll(_ context.Context, code string, _ []string) (string, error) {
	n.calls++
	return code, nil
}

// scriptedGenerator answers every role from fixed values. Corrector
// answers come from correct, or echo the source code when it is nil.
type scriptedGenerator struct {
	mu       sync.Mutex
	steps    []string
	deps     []string
	code     string
	query    string
	correct  func(req provider.Request) string
	failRole provider.Role
	failErr  error
	requests []provider.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req provider.Request) (*provider.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if req.Role == g.failRole && g.failErr != nil {
		return nil, g.failErr
	}
	switch req.Role {
	case provider.RolePlanner:
		return &provider.Result{Steps: g.steps, RawText: strings.Join(g.steps, "\n")}, nil
	case provider.RoleDependencyTracker:
		return &provider.Result{Dependencies: g.deps}, nil
	case provider.RoleCoder:
		return &provider.Result{Code: g.code}, nil
	case provider.RoleLinter:
		return &provider.Result{Query: g.query}, nil
	case provider.RoleCorrector:
		if g.correct != nil {
			return &provider.Result{Code: g.correct(req), Thought: "fix it"}, nil
		}
		return &provider.Result{Code: req.Inputs[provider.InputSourceCode], Thought: "looks fine"}, nil
	}
	return nil, errors.New("unexpected role " + string(req.Role))
}

func (g *scriptedGenerator) count(role provider.Role) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.Role == role {
			n++
		}
	}
	return n
}

func (g *scriptedGenerator) last(role provider.Role) (provider.Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.requests) - 1; i >= 0; i-- {
		if g.requests[i].Role == role {
			return g.requests[i], true
		}
	}
	return provider.Request{}, false
}

type recordingSymbols struct {
	queries []string
	answer  string
	err     error
}

func (s *recordingSymbols) Lookup(_ context.Context, q string) (string, error) {
	s.queries = append(s.queries, q)
	return s.answer, s.err
}

type staticRetriever struct{ docs string }

func (r staticRetriever) Retrieve(context.Context, string) (string, error) { return r.docs, nil }

// fakeChecker knows a fixed set of packages.
type fakeChecker struct {
	known  map[string]bool
	probed []string
}

func (c *fakeChecker) Exists(_ context.Context, name string) (bool, error) {
	c.probed = append(c.probed, name)
	return c.known[name], nil
}

type harness struct {
	gen       *scriptedGenerator
	runner    *fakeRunner
	validator *fakeValidator
	norm      *identityNormalizer
	symbols   *recordingSymbols
	manager   *sandbox.Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		gen:       &scriptedGenerator{steps: []string{"print a greeting"}, code: "print('hello')"},
		runner:    &fakeRunner{},
		validator: &fakeValidator{},
		norm:      &identityNormalizer{},
		symbols:   &recordingSymbols{},
	}
	h.manager = sandbox.NewManager(sandbox.Options{
		BasePath:  t.TempDir(),
		Isolation: sandbox.IsolationNone,
	}, h.runner)
	return h
}

func (h *harness) components() Components {
	return Components{
		Generator:  h.gen,
		Normalizer: h.norm,
		Validator:  h.validator,
		Sandbox:    h.manager,
		Symbols:    h.symbols,
		Checker:    &fakeChecker{},
	}
}

// testConfig is the default executor config without delays or index
// probes.
func testConfig() api.ExecutorConfig {
	cfg := api.DefaultExecutorConfig()
	cfg.CheckPackageIsInPyPI = false
	cfg.ExecutionTimeoutSeconds = 5
	return cfg
}

func init() {
	installRetryDelay = 0
}

func (h *harness) env(t *testing.T) (*sandbox.Environment, *sandbox.CodeUnit) {
	t.Helper()
	env, err := h.manager.CreateEnvironment(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateEnvironment: %v", err)
	}
	return env, h.manager.NewCodeUnit(env)
}
