package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/sandbox"
)

// Emitter receives the progress messages of a task.
type Emitter func(ctx context.Context, msg api.StreamMessage)

// Session solves one task. It owns its environment and code unit, so
// sessions never share sandbox state.
type Session struct {
	c        Components
	cfg      api.ExecutorConfig
	resolver *Resolver
	healer   *Healer

	env  *sandbox.Environment
	unit *sandbox.CodeUnit
}

// NewSession creates a session. No environment exists until the first
// operation that needs one.
func NewSession(c Components, cfg api.ExecutorConfig) *Session {
	c = c.withDefaults()
	var checker PackageChecker
	if cfg.CheckPackageIsInPyPI {
		checker = c.Checker
	}
	return &Session{
		c:        c,
		cfg:      cfg,
		resolver: NewResolver(cfg.DependencyBlacklist, checker, c.Logger),
		healer:   NewHealer(c, cfg),
	}
}

// Environment returns the session environment, or nil before it exists.
func (s *Session) Environment() *sandbox.Environment { return s.env }

func (s *Session) ensureEnv(ctx context.Context) error {
	if s.env != nil {
		return nil
	}
	env, err := s.c.Sandbox.CreateEnvironment(ctx, "")
	if err != nil {
		return fmt.Errorf("creating environment: %w", err)
	}
	s.env = env
	s.unit = s.c.Sandbox.NewCodeUnit(env)
	return nil
}

// Execute runs the whole pipeline for one task: retrieval, planning,
// dependency resolution and install, code generation, and healing. The
// returned log is filled as far as the pipeline got, also on error.
func (s *Session) Execute(ctx context.Context, taskID int, req *api.TaskRequest, emit Emitter) (*api.TaskLog, error) {
	if emit == nil {
		emit = func(context.Context, api.StreamMessage) {}
	}
	task := req.Text()
	log := &api.TaskLog{
		TaskID: taskID,
		Task:   task,
		Time:   time.Now(),
		Config: s.cfg,
	}

	if err := s.ensureEnv(ctx); err != nil {
		return log, err
	}
	if req.SourceCode != "" {
		if err := s.unit.Overwrite(req.SourceCode); err != nil {
			return log, fmt.Errorf("writing source code: %w", err)
		}
	}

	docs := s.retrieve(ctx, task)
	log.InitialCode.Timestamp = time.Now()
	log.InitialCode.DocumentationScraping = api.DocumentationScraping{
		RelevantDocs: docs,
		NumTokens:    api.EstimateTokens(docs),
	}

	planned, err := s.c.Generator.Generate(ctx, provider.Request{
		Role: provider.RolePlanner,
		Inputs: map[string]string{
			provider.InputTask:    task,
			provider.InputContext: docs,
		},
	})
	if err != nil {
		return log, fmt.Errorf("planning: %w", err)
	}
	steps := planned.Steps
	if len(steps) == 0 && strings.TrimSpace(planned.RawText) != "" {
		steps = []string{strings.TrimSpace(planned.RawText)}
	}
	plan := strings.Join(steps, "\n")
	log.InitialCode.GeneratedPlan.Plan = steps
	emit(ctx, api.StreamMessage{Plan: plan})

	tracked, err := s.c.Generator.Generate(ctx, provider.Request{
		Role: provider.RoleDependencyTracker,
		Inputs: map[string]string{
			provider.InputTask: task,
			provider.InputPlan: plan,
		},
	})
	if err != nil {
		return log, fmt.Errorf("tracking dependencies: %w", err)
	}
	deps := s.resolver.Resolve(ctx, tracked.Dependencies)
	log.InitialCode.Dependencies.Dependencies = deps
	if s.cfg.ExecuteCode && s.cfg.InstallDependencies {
		msg, err := s.InstallDependencies(ctx, deps)
		if err != nil {
			return log, err
		}
		s.c.Logger.Info(msg)
	}

	coded, err := s.c.Generator.Generate(ctx, provider.Request{
		Role: provider.RoleCoder,
		Inputs: map[string]string{
			provider.InputTask:       task,
			provider.InputPlan:       plan,
			provider.InputContext:    docs,
			provider.InputSourceCode: s.unit.Display(),
		},
	})
	if err != nil {
		return log, fmt.Errorf("generating code: %w", err)
	}
	log.InitialCode.CodingAgent = api.CodeGeneration{Thought: coded.Thought, GeneratedCode: coded.Code}
	emit(ctx, api.StreamMessage{Plan: plan, Code: coded.Code})

	out, err := s.healer.Heal(ctx, HealInput{
		Task:         task,
		Code:         coded.Code,
		Context:      docs,
		Dependencies: deps,
		Env:          s.env,
		Unit:         s.unit,
		OnAttempt: func(ctx context.Context, _ api.GenerationAttempt, code, errMsg string) {
			emit(ctx, api.StreamMessage{Plan: plan, Code: code, Error: errMsg})
		},
	})
	if err != nil {
		return log, err
	}

	log.GenerationAttempts = out.Attempts
	log.SumMetric()
	log.Succeeded = out.Succeeded
	log.FinalCode = out.Code
	log.FinalError = out.Error
	emit(ctx, api.StreamMessage{Plan: plan, Code: out.Code, Error: out.Error, IsFinal: true})
	return log, nil
}

func (s *Session) retrieve(ctx context.Context, task string) string {
	docs, err := s.c.Retriever.Retrieve(ctx, task)
	if err != nil {
		s.c.Logger.Warn("documentation retrieval failed", "error", err)
		return ""
	}
	return docs
}

// InstallDependencies registers deps on the session environment and
// installs them, retrying a failed install up to DependencyInstallAttempts
// times. It returns the installer summary, or "no dependencies to install."
// when deps is empty. A failing install is reported in the summary.
func (s *Session) InstallDependencies(ctx context.Context, deps []string) (string, error) {
	if len(deps) == 0 {
		return "no dependencies to install.", nil
	}
	if err := s.ensureEnv(ctx); err != nil {
		return "", err
	}
	for _, d := range deps {
		if err := s.c.Sandbox.AddDependency(s.env, d); err != nil && !errors.Is(err, sandbox.ErrAlreadyInstalled) {
			return "", fmt.Errorf("adding dependency %s: %w", d, err)
		}
	}

	attempts := max(s.cfg.DependencyInstallAttempts, 1)
	var res sandbox.Result
	for attempt := 1; ; attempt++ {
		var err error
		res, err = s.c.Sandbox.InstallDependencies(ctx, s.env)
		if err != nil {
			return "", err
		}
		if !res.Failed() || attempt >= attempts {
			break
		}
		s.c.Logger.Warn("dependency install failed, retrying", "attempt", attempt, "dependencies", deps)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(installRetryDelay):
		}
	}
	return fmt.Sprintf("dependency installer results: dependencies=%v, return_code=%d, stdout=%s, stderr=%s",
		s.env.Dependencies(), res.ExitCode, res.Stdout, res.Stderr), nil
}

// Close removes the session environment.
func (s *Session) Close() error {
	if s.env == nil {
		return nil
	}
	err := s.c.Sandbox.Remove(s.env)
	s.env, s.unit = nil, nil
	return err
}
