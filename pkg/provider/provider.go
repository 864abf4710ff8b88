package provider

import (
	"context"
	"errors"
	"fmt"
)

// Role selects the prompt and the parser used for a generation request.
type Role string

const (
	RolePlanner           Role = "planner"
	RoleCoder             Role = "coder"
	RoleCorrector         Role = "corrector"
	RoleDependencyTracker Role = "dependency_tracker"
	RoleLinter            Role = "linter"
)

// Roles lists every known role.
var Roles = []Role{RolePlanner, RoleCoder, RoleCorrector, RoleDependencyTracker, RoleLinter}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Input keys understood by the built-in prompts.
const (
	InputTask       = "task"
	InputContext    = "context"
	InputPlan       = "plan"
	InputSourceCode = "source_code"
	InputError      = "error"
	InputLintOutput = "lint_output"
)

// Request is one generation call.
type Request struct {
	Role   Role
	Inputs map[string]string
}

// Result is the parsed answer of a generation call. Which fields are set
// depends on the role.
type Result struct {
	RawText      string
	Code         string   // coder, corrector
	Thought      string   // corrector
	Steps        []string // planner
	Dependencies []string // dependency tracker
	Query        string   // linter
}

// Generator produces role-specific generations.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (*Result, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Completer is a prose completion backend.
type Completer interface {
	Complete(ctx context.Context, system, user string, temperature float32) (string, error)
}

// Embedder turns text into a vector for hybrid search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	// ErrRateLimited is returned by backends when the request was throttled.
	ErrRateLimited = errors.New("provider: rate limited")
	// ErrUnavailable is returned by backends on transient server or
	// network failures.
	ErrUnavailable = errors.New("provider: backend unavailable")
	// ErrRetriesExhausted wraps the last transient error once all retries
	// are used up. It is fatal to the task.
	ErrRetriesExhausted = errors.New("provider: retries exhausted")
	// ErrUnknownRole is returned for requests with an unsupported role.
	ErrUnknownRole = errors.New("provider: unknown role")
)

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

func unknownRole(r Role) error {
	return fmt.Errorf("%w %q", ErrUnknownRole, string(r))
}
