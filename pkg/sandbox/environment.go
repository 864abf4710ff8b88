package sandbox

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrAlreadyInstalled is returned when a dependency is added to an
// environment whose dependencies were already installed.
var ErrAlreadyInstalled = errors.New("sandbox: dependencies already installed")

// EnvironmentCreationError reports that an environment could not be set up.
// It is a configuration error and aborts the task.
type EnvironmentCreationError struct {
	Name string
	Err  error
}

func (e *EnvironmentCreationError) Error() string {
	return fmt.Sprintf("create environment %q: %v", e.Name, e.Err)
}

func (e *EnvironmentCreationError) Unwrap() error { return e.Err }

// Environment is an isolated place to install packages and run code.
// The interpreter is fixed when the environment is created.
type Environment struct {
	Name        string
	Root        string
	Interpreter string

	mu        sync.Mutex
	deps      []string
	installed bool
}

// AddDependency registers a package for installation. Duplicate names are
// ignored. No existence check is performed.
func (e *Environment) AddDependency(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.installed {
		return ErrAlreadyInstalled
	}
	if !slices.Contains(e.deps, name) {
		e.deps = append(e.deps, name)
	}
	return nil
}

// Dependencies returns the registered packages in insertion order.
func (e *Environment) Dependencies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.deps)
}

// Installed reports whether InstallDependencies has run.
func (e *Environment) Installed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installed
}

func (e *Environment) markInstalled() {
	e.mu.Lock()
	e.installed = true
	e.mu.Unlock()
}
