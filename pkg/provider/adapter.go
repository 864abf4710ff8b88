package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/observability"
)

// Modeler is implemented by completers that know their model name. The name
// only labels metrics.
type Modeler interface {
	Model() string
}

// TextAdapter turns a prose Completer into a Generator.
type TextAdapter struct {
	completer    Completer
	completers   map[Role]Completer
	temperatures map[Role]float32
	prompts      map[Role]*compiledPrompt
}

var _ Generator = (*TextAdapter)(nil)

// AdapterOption configures a TextAdapter.
type AdapterOption func(*TextAdapter) error

// WithRoleCompleter routes one role to a different completer, e.g. a
// different model.
func WithRoleCompleter(role Role, c Completer) AdapterOption {
	return func(a *TextAdapter) error {
		if !role.Valid() {
			return unknownRole(role)
		}
		a.completers[role] = c
		return nil
	}
}

// WithTemperatures sets the sampling temperature per role. Roles not in the
// map keep their current value.
func WithTemperatures(t map[Role]float32) AdapterOption {
	return func(a *TextAdapter) error {
		for role, v := range t {
			a.temperatures[role] = v
		}
		return nil
	}
}

// WithPrompt replaces the prompt of one role.
func WithPrompt(role Role, p Prompt) AdapterOption {
	return func(a *TextAdapter) error {
		if !role.Valid() {
			return unknownRole(role)
		}
		cp, err := compilePrompt(role, p)
		if err != nil {
			return err
		}
		a.prompts[role] = cp
		return nil
	}
}

// TemperaturesFrom maps executor settings to per-role temperatures. The
// linter role always samples at zero.
func TemperaturesFrom(cfg api.ExecutorConfig) map[Role]float32 {
	return map[Role]float32{
		RolePlanner:           cfg.PlannerTemperature,
		RoleCoder:             cfg.CoderTemperature,
		RoleCorrector:         cfg.CodeCorrectorTemperature,
		RoleDependencyTracker: cfg.DependencyTrackerTemperature,
		RoleLinter:            0,
	}
}

// NewTextAdapter returns a TextAdapter using the default prompts.
func NewTextAdapter(c Completer, opts ...AdapterOption) (*TextAdapter, error) {
	if c == nil {
		return nil, errors.New("provider: nil completer")
	}
	a := &TextAdapter{
		completer:    c,
		completers:   make(map[Role]Completer),
		temperatures: TemperaturesFrom(api.DefaultExecutorConfig()),
		prompts:      make(map[Role]*compiledPrompt, len(DefaultPrompts)),
	}
	for role, p := range DefaultPrompts {
		cp, err := compilePrompt(role, p)
		if err != nil {
			return nil, err
		}
		a.prompts[role] = cp
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Generate renders the role's prompt, calls the completer and parses the
// reply.
func (a *TextAdapter) Generate(ctx context.Context, req Request) (*Result, error) {
	prompt, ok := a.prompts[req.Role]
	if !ok {
		return nil, unknownRole(req.Role)
	}
	system, user, err := prompt.render(req.Inputs)
	if err != nil {
		return nil, err
	}

	c := a.completer
	if rc, ok := a.completers[req.Role]; ok {
		c = rc
	}
	model := "unknown"
	if m, ok := c.(Modeler); ok {
		model = m.Model()
	}

	debug.Trace("provider", "prompt", "role", req.Role, "user", debug.Truncate(user, 2000))

	start := time.Now()
	raw, err := c.Complete(ctx, system, user, a.temperatures[req.Role])
	elapsed := time.Since(start)
	observability.ProviderLatency.WithLabelValues(string(req.Role), model).Observe(elapsed.Seconds())
	if err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(string(req.Role), model, "error").Inc()
		return nil, fmt.Errorf("%s completion: %w", req.Role, err)
	}
	observability.ProviderRequestsTotal.WithLabelValues(string(req.Role), model, "ok").Inc()
	debug.Log("provider", "completion", "role", req.Role, "model", model, "elapsed", elapsed, "chars", len(raw))

	return parseReply(req.Role, raw), nil
}

func parseReply(role Role, raw string) *Result {
	res := &Result{RawText: raw}
	switch role {
	case RolePlanner:
		res.Steps = ParseSteps(raw)
	case RoleDependencyTracker:
		res.Dependencies = ParseDependencies(raw)
	case RoleCoder:
		res.Code = ParseCode(raw)
	case RoleCorrector:
		res.Thought, res.Code = ParseCorrection(raw)
	case RoleLinter:
		res.Query = ParseQuery(raw)
	}
	return res
}
