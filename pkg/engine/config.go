package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/codinit/pkg/imports"
	"github.com/rhuss/codinit/pkg/lint"
	"github.com/rhuss/codinit/pkg/provider"
	"github.com/rhuss/codinit/pkg/retrieval"
	"github.com/rhuss/codinit/pkg/sandbox"
)

// Sandbox manages task environments and runs code in them.
// *sandbox.Manager implements it.
type Sandbox interface {
	Executor
	CreateEnvironment(ctx context.Context, name string) (*sandbox.Environment, error)
	NewCodeUnit(env *sandbox.Environment) *sandbox.CodeUnit
	AddDependency(env *sandbox.Environment, name string) error
	InstallDependencies(ctx context.Context, env *sandbox.Environment) (sandbox.Result, error)
	Remove(env *sandbox.Environment) error
}

var _ Sandbox = (*sandbox.Manager)(nil)

// Components are the collaborators shared by every task session. Only
// Generator is required.
type Components struct {
	Generator  provider.Generator
	Normalizer Normalizer
	Validator  Validator
	Sandbox    Sandbox
	Retriever  retrieval.Retriever
	Symbols    retrieval.SymbolLookup
	// Checker probes the package index when CheckPackageIsInPyPI is set.
	// Nil means the public PyPI.
	Checker PackageChecker
	Logger  *slog.Logger
}

func (c Components) withDefaults() Components {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Normalizer == nil {
		c.Normalizer = imports.New(nil)
	}
	if c.Validator == nil {
		c.Validator = lint.NewValidator("")
	}
	if c.Sandbox == nil {
		c.Sandbox = sandbox.NewManager(sandbox.Options{}, nil, sandbox.WithLogger(c.Logger))
	}
	if c.Retriever == nil {
		c.Retriever = retrieval.Nop{}
	}
	if c.Symbols == nil {
		c.Symbols = retrieval.Nop{}
	}
	if c.Checker == nil {
		c.Checker = NewPyPI()
	}
	return c
}

// installRetryDelay separates dependency install attempts.
var installRetryDelay = 2 * time.Second
