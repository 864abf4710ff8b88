package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/lint"
	"github.com/rhuss/codinit/pkg/observability"
	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/retrieval"
	"github.com/rhuss/codinit/pkg/sandbox"
)

// Normalizer rewrites the imports of generated code.
type Normalizer interface {
	NormalizeAll(ctx context.Context, code string, deps []string) (string, error)
}

// Validator lints a Python file and returns its diagnostics.
type Validator interface {
	Lint(ctx context.Context, path string) ([]string, error)
}

// Executor writes code to a unit and runs it under a timeout.
type Executor interface {
	WriteAndRun(ctx context.Context, env *sandbox.Environment, unit *sandbox.CodeUnit, code string, timeout time.Duration) (sandbox.Result, error)
}

// HealInput is the starting point of one healing run.
type HealInput struct {
	Task         string
	Code         string
	Context      string // retrieved documentation
	Dependencies []string
	Env          *sandbox.Environment
	Unit         *sandbox.CodeUnit

	// OnAttempt, if set, is called after every outer attempt.
	OnAttempt func(ctx context.Context, attempt api.GenerationAttempt, code, errMsg string)
}

// HealOutput is the outcome of a healing run. When Succeeded is false, Code
// is the last code produced and is known not to work.
type HealOutput struct {
	Code        string
	Error       string   // last execution message
	Diagnostics []string // lint findings left on Code
	Succeeded   bool
	Attempts    []api.GenerationAttempt
	Metric      int
}

// Healer runs the self-healing loop: a lint-correction loop, then one
// runtime correction, repeated over outer attempts until the code runs.
type Healer struct {
	gen        provider.Generator
	normalizer Normalizer
	validator  Validator
	executor   Executor
	symbols    retrieval.SymbolLookup
	cfg        api.ExecutorConfig
	logger     *slog.Logger
}

// NewHealer creates a Healer from the engine components.
func NewHealer(c Components, cfg api.ExecutorConfig) *Healer {
	c = c.withDefaults()
	return &Healer{
		gen:        c.Generator,
		normalizer: c.Normalizer,
		validator:  c.Validator,
		executor:   c.Sandbox,
		symbols:    c.Symbols,
		cfg:        cfg,
		logger:     c.Logger,
	}
}

func (h *Healer) timeout() time.Duration {
	if h.cfg.ExecutionTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(h.cfg.ExecutionTimeoutSeconds) * time.Second
}

// Heal drives in.Code towards code that lints clean and runs. Failing code
// is a normal outcome reported through HealOutput. Errors are returned only
// for broken configuration, exhausted generation retries, and cancellation.
func (h *Healer) Heal(ctx context.Context, in HealInput) (*HealOutput, error) {
	out := &HealOutput{Code: in.Code}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		ga := api.GenerationAttempt{GenerationID: attempt}

		code, diags, rounds, err := h.lintLoop(ctx, in, out.Code)
		if err != nil {
			return nil, err
		}
		ga.LintingLoop = rounds
		out.Code = code
		out.Diagnostics = diags

		if !h.cfg.ExecuteCode {
			out.Succeeded = len(diags) == 0
			out.Error = strings.Join(diags, "\n")
			h.finishAttempt(ctx, in, out, ga, start)
			break
		}

		step, err := h.runtimeStep(ctx, in, out.Code)
		if err != nil {
			return nil, err
		}
		ga.CorrectionLoop = step.record
		out.Code = step.code
		if step.corrected {
			out.Diagnostics = step.diags
		}
		out.Error = step.result.Message()
		out.Succeeded = !step.result.Failed()
		h.finishAttempt(ctx, in, out, ga, start)

		if out.Succeeded || attempt+1 > h.cfg.CodingAttempts {
			break
		}
		h.logger.Info("code still failing, starting next attempt", "attempt", attempt+1)
	}

	for _, a := range out.Attempts {
		out.Metric += a.Metric
	}
	status := "succeeded"
	if !out.Succeeded {
		status = "gave_up"
	}
	observability.HealTasksTotal.WithLabelValues(status).Inc()
	observability.HealAttempts.Observe(float64(len(out.Attempts)))
	observability.TaskMetric.Observe(float64(out.Metric))
	return out, nil
}

func (h *Healer) finishAttempt(ctx context.Context, in HealInput, out *HealOutput, ga api.GenerationAttempt, start time.Time) {
	ga.Time = time.Since(start).Seconds()
	ga.SumMetric()
	out.Attempts = append(out.Attempts, ga)
	debug.Log("engine", "attempt finished",
		"attempt", ga.GenerationID, "lint_rounds", len(ga.LintingLoop), "metric", ga.Metric)
	if in.OnAttempt != nil {
		in.OnAttempt(ctx, ga, out.Code, out.Error)
	}
}

// lintLoop normalizes and lints code, then asks for corrections while
// diagnostics remain, for at most LintCorrectionThreshold rounds.
func (h *Healer) lintLoop(ctx context.Context, in HealInput, code string) (string, []string, []api.LintingAttempt, error) {
	code = h.normalize(ctx, code, in.Dependencies)
	diags, err := h.lint(ctx, in.Unit, code)
	if err != nil {
		return "", nil, nil, err
	}
	rounds := []api.LintingAttempt{{
		Timestamp:  time.Now(),
		Code:       code,
		LintResult: diags,
		Metric:     len(diags),
	}}

	for round := 0; len(diags) > 0 && round < h.cfg.LintCorrectionThreshold; {
		query := h.lintQuery(ctx, code, diags)
		found := h.lookup(ctx, query)

		res, err := h.gen.Generate(ctx, provider.Request{
			Role: provider.RoleCorrector,
			Inputs: map[string]string{
				provider.InputTask:       in.Task,
				provider.InputContext:    joinContext(in.Context, found),
				provider.InputSourceCode: code,
				provider.InputLintOutput: strings.Join(diags, "\n"),
			},
		})
		if err != nil {
			return "", nil, nil, fmt.Errorf("lint correction: %w", err)
		}

		seen := code
		code = h.normalize(ctx, res.Code, in.Dependencies)
		round++
		diags, err = h.lint(ctx, in.Unit, code)
		if err != nil {
			return "", nil, nil, err
		}
		rounds = append(rounds, api.LintingAttempt{
			Timestamp:       time.Now(),
			LintAttempt:     round,
			Code:            seen,
			LintQueryResult: found,
			LintResponse:    query,
			GeneratedCode:   &api.CodeGeneration{Thought: res.Thought, GeneratedCode: code},
			LintResult:      diags,
			Metric:          len(diags),
		})
		debug.Log("engine", "lint round", "round", round, "diagnostics", len(diags))
	}
	return code, diags, rounds, nil
}

// lintQuery asks the linter role what to look up. The first diagnostic is
// used when the role has no answer.
func (h *Healer) lintQuery(ctx context.Context, code string, diags []string) string {
	res, err := h.gen.Generate(ctx, provider.Request{
		Role: provider.RoleLinter,
		Inputs: map[string]string{
			provider.InputSourceCode: code,
			provider.InputLintOutput: strings.Join(diags, "\n"),
		},
	})
	if err == nil && strings.TrimSpace(res.Query) != "" {
		return retrieval.SanitizeQuery(res.Query)
	}
	if err != nil {
		h.logger.Warn("lint query generation failed, using first diagnostic", "error", err)
	}
	return retrieval.SanitizeQuery(diags[0])
}

func (h *Healer) lookup(ctx context.Context, query string) string {
	if query == "" {
		return ""
	}
	found, err := h.symbols.Lookup(ctx, query)
	if err != nil {
		h.logger.Warn("symbol lookup failed", "query", query, "error", err)
		return ""
	}
	return found
}

type runtimeOutcome struct {
	code      string
	corrected bool
	diags     []string
	result    sandbox.Result
	record    *api.CorrectionLoop
}

// runtimeStep runs the code and, if it fails, asks for one correction and
// runs the corrected code again.
func (h *Healer) runtimeStep(ctx context.Context, in HealInput, code string) (runtimeOutcome, error) {
	first, err := h.executor.WriteAndRun(ctx, in.Env, in.Unit, code, h.timeout())
	if err != nil {
		return runtimeOutcome{}, fmt.Errorf("running code: %w", err)
	}
	record := &api.CorrectionLoop{Timestamp: time.Now(), Error1: first.Message()}
	if !first.Failed() {
		return runtimeOutcome{code: code, result: first, record: record}, nil
	}

	res, err := h.gen.Generate(ctx, provider.Request{
		Role: provider.RoleCorrector,
		Inputs: map[string]string{
			provider.InputTask:       in.Task,
			provider.InputContext:    in.Context,
			provider.InputSourceCode: code,
			provider.InputError:      first.Message(),
		},
	})
	if err != nil {
		return runtimeOutcome{}, fmt.Errorf("runtime correction: %w", err)
	}

	code = h.normalize(ctx, res.Code, in.Dependencies)
	diags, err := h.lint(ctx, in.Unit, code)
	if err != nil {
		return runtimeOutcome{}, err
	}
	second, err := h.executor.WriteAndRun(ctx, in.Env, in.Unit, code, h.timeout())
	if err != nil {
		return runtimeOutcome{}, fmt.Errorf("running corrected code: %w", err)
	}

	record.GeneratedCode = api.CodeGeneration{Thought: res.Thought, GeneratedCode: code}
	record.LintResult = diags
	record.Metric = len(diags)
	record.Error2 = second.Message()
	return runtimeOutcome{code: code, corrected: true, diags: diags, result: second, record: record}, nil
}

// normalize rewrites imports. A sorter failure leaves the code unchanged.
func (h *Healer) normalize(ctx context.Context, code string, deps []string) string {
	normalized, err := h.normalizer.NormalizeAll(ctx, code, deps)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("import normalization failed, keeping code as is", "error", err)
		}
		return code
	}
	return normalized
}

func (h *Healer) lint(ctx context.Context, unit *sandbox.CodeUnit, code string) ([]string, error) {
	if err := unit.Overwrite(code); err != nil {
		return nil, fmt.Errorf("writing code unit: %w", err)
	}
	diags, err := h.validator.Lint(ctx, unit.Path())
	if err != nil {
		return nil, fmt.Errorf("linting: %w", err)
	}
	return diags, nil
}

func joinContext(docs, found string) string {
	return retrieval.Join([]string{docs, found})
}

// IsConfigurationError reports whether err comes from a missing tool or an
// environment that could not be created.
func IsConfigurationError(err error) bool {
	var envErr *sandbox.EnvironmentCreationError
	var toolErr *lint.ToolError
	return errors.As(err, &envErr) || errors.As(err, &toolErr)
}
