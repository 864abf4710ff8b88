// Package lint runs pylint restricted to a fixed set of import and name
// checks and turns its report into a list of diagnostics.
//
// The rule set only catches problems a generated program cannot recover from
// at runtime: unresolvable imports, undefined names, bad calls and missing
// members. An empty diagnostic list is the sole success criterion.
package lint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/rhuss/codinit/pkg/debug"
	"github.com/rhuss/codinit/pkg/observability"
)

// DefaultRules are the pylint message IDs enabled for every run.
var DefaultRules = []string{
	"E0401", // import-error
	"E0611", // no-name-in-module
	"E0402", // relative-beyond-top-level
	"E0602", // undefined-variable
	"E0603", // undefined-all-variable
	"E0604", // invalid-all-object
	"W1505", // deprecated-method
	"E1102", // not-callable
	"E1101", // no-member
}

// pylint exit status bits that mean the run itself went wrong.
const (
	exitFatal = 1
	exitUsage = 32
)

// ToolError reports that pylint could not be run or aborted. It is a
// configuration error, not a property of the code under test.
type ToolError struct {
	Binary   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lint tool %s: %v", e.Binary, e.Err)
	}
	return fmt.Sprintf("lint tool %s exited with status %d: %s", e.Binary, e.ExitCode, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Validator lints Python files with pylint.
type Validator struct {
	binary string
	rules  []string
}

// NewValidator returns a Validator running binary. Empty means "pylint".
func NewValidator(binary string) *Validator {
	if binary == "" {
		binary = "pylint"
	}
	return &Validator{binary: binary, rules: DefaultRules}
}

// Args returns the pylint arguments used for path.
func (v *Validator) Args(path string) []string {
	return []string{path, "--disable=all", "--enable=" + strings.Join(v.rules, ",")}
}

// Lint runs pylint on path and returns the report lines that start with
// path. pylint encodes message classes in its exit status, so a non-zero
// exit is only an error when the fatal or usage bit is set.
func (v *Validator) Lint(ctx context.Context, path string) ([]string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, v.binary, v.Args(path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		// A killed pylint exits with -1, which would read as a fatal bit.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			code := exitErr.ExitCode()
			if code&(exitFatal|exitUsage) != 0 {
				return nil, &ToolError{
					Binary:   v.binary,
					ExitCode: code,
					Stderr:   strings.TrimSpace(stderr.String()),
				}
			}
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return nil, &ToolError{Binary: v.binary, Err: fmt.Errorf("%w: %v", exec.ErrNotFound, err)}
		default:
			return nil, &ToolError{Binary: v.binary, Err: err}
		}
	}

	diags := Filter(stdout.String(), path)
	observability.LintRoundsTotal.WithLabelValues(fmt.Sprint(len(diags) == 0)).Inc()
	debug.Log("lint", "pylint finished", "path", path, "diagnostics", len(diags), "elapsed", time.Since(start))
	return diags, nil
}

// Filter keeps the lines of a pylint report that start with path.
func Filter(report, path string) []string {
	var diags []string
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, path) {
			diags = append(diags, line)
		}
	}
	return diags
}
