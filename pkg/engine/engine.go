package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/storage"
	"github.com/rhuss/codinit/pkg/transport"
)

// Engine runs tasks for the streaming front ends. It implements
// transport.TaskRunner.
type Engine struct {
	c     Components
	cfg   api.ExecutorConfig
	store storage.RunStore

	// Run metadata for the runs the engine opens in the store.
	gitSHA        string
	commitMessage string

	mu   sync.Mutex
	runs map[string]*serverRun // by tenant
}

// serverRun is the run that collects the tasks of one tenant.
type serverRun struct {
	id   string
	next int
}

var _ transport.TaskRunner = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithStore records every task log in store. Tasks of one tenant go into a
// single run that the engine opens on the tenant's first task.
func WithStore(store storage.RunStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithRunInfo sets the git metadata of the runs the engine opens.
func WithRunInfo(gitSHA, commitMessage string) Option {
	return func(e *Engine) {
		e.gitSHA = gitSHA
		e.commitMessage = commitMessage
	}
}

// New creates an Engine. The generator must not be nil; other components
// fall back to their defaults.
func New(c Components, cfg api.ExecutorConfig, opts ...Option) (*Engine, error) {
	if c.Generator == nil {
		return nil, fmt.Errorf("engine: generator must not be nil")
	}
	e := &Engine{
		c:    c.withDefaults(),
		cfg:  cfg,
		runs: make(map[string]*serverRun),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Solve runs one task in a fresh session and removes the session
// environment afterwards.
func (e *Engine) Solve(ctx context.Context, taskID int, req *api.TaskRequest, emit Emitter) (*api.TaskLog, error) {
	s := NewSession(e.c, e.cfg)
	defer func() {
		if err := s.Close(); err != nil {
			e.c.Logger.Warn("removing task environment", "error", err)
		}
	}()
	if len(req.Libraries) > 0 {
		debug.Log("engine", "task libraries", "libraries", req.Libraries)
	}
	return s.Execute(ctx, taskID, req, emit)
}

// Generate validates req, solves it and records the task log. emit
// receives the progress messages. A pipeline error is mapped to an
// APIError and also stored in the log's FinalError.
func (e *Engine) Generate(ctx context.Context, req *api.TaskRequest, emit Emitter) (*api.TaskLog, error) {
	if apiErr := req.Validate(); apiErr != nil {
		return nil, apiErr
	}

	runID, taskID, err := e.reserveTask(ctx)
	if err != nil {
		e.c.Logger.Warn("run store unavailable, task will not be recorded", "error", err)
	}

	log, err := e.Solve(ctx, taskID, req, emit)
	if err != nil {
		apiErr := MapError(err)
		if log != nil {
			log.FinalError = apiErr.Message
		}
		e.record(ctx, runID, log)
		return log, apiErr
	}
	e.record(ctx, runID, log)
	return log, nil
}

// RunTask solves req while streaming progress to w. A failing pipeline
// still ends the stream with a final message carrying the error.
func (e *Engine) RunTask(ctx context.Context, req *api.TaskRequest, w transport.MessageWriter) error {
	var writeErr error
	emit := func(ctx context.Context, msg api.StreamMessage) {
		if writeErr != nil {
			return
		}
		if writeErr = w.WriteMessage(ctx, msg); writeErr == nil {
			writeErr = w.Flush()
		}
	}

	if _, err := e.Generate(ctx, req, emit); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Type != api.ErrorTypeInvalidRequest {
			emit(ctx, api.StreamMessage{Error: apiErr.Message, IsFinal: true})
		}
		return err
	}

	if writeErr != nil && !errors.Is(writeErr, transport.ErrStreamClosed) {
		return fmt.Errorf("writing messages: %w", writeErr)
	}
	return nil
}

// reserveTask returns the tenant's run and the next task number, opening
// the run on first use. Without a store the task number still counts up.
func (e *Engine) reserveTask(ctx context.Context) (string, int, error) {
	tenant := storage.GetTenant(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.runs[tenant]
	if !ok {
		r = &serverRun{}
		if e.store != nil {
			run := storage.NewRun(e.gitSHA, e.commitMessage)
			if err := e.store.SaveRun(ctx, run); err != nil {
				return "", 0, fmt.Errorf("opening run: %w", err)
			}
			r.id = run.RunID
			e.c.Logger.Info("opened run", "run_id", run.RunID, "tenant", tenant)
		}
		e.runs[tenant] = r
	}
	id := r.next
	r.next++
	return r.id, id, nil
}

func (e *Engine) record(ctx context.Context, runID string, log *api.TaskLog) {
	if e.store == nil || runID == "" || log == nil {
		return
	}
	// The task is recorded even when the client went away mid-stream.
	if err := e.store.AppendTask(context.WithoutCancel(ctx), runID, log); err != nil {
		e.c.Logger.Error("recording task", "run_id", runID, "task_id", log.TaskID, "error", err)
	}
}

// RunID returns the run the engine opened for the context tenant, or ""
// before the tenant's first task.
func (e *Engine) RunID(ctx context.Context) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.runs[storage.GetTenant(ctx)]; ok {
		return r.id
	}
	return ""
}

// MapError converts a pipeline error into the APIError sent to clients.
func MapError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case IsConfigurationError(err):
		return api.NewConfigurationError(err.Error())
	case errors.Is(err, provider.ErrRateLimited), errors.Is(err, provider.ErrRetriesExhausted),
		errors.Is(err, provider.ErrUnavailable):
		return api.NewGenerationError(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return api.NewServerError("task cancelled: " + err.Error())
	default:
		return api.NewServerError(err.Error())
	}
}
