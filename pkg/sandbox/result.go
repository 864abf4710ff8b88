package sandbox

import (
	"fmt"
	"strings"
	"time"
)

// Kind classifies the outcome of a run.
type Kind int

const (
	Success Kind = iota
	Failure
	Timeout
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of an install or a run.
type Result struct {
	Kind     Kind
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Classify maps an exit code to a Kind. A timed out run is always Timeout.
func Classify(exitCode int, timedOut bool) Kind {
	switch {
	case timedOut:
		return Timeout
	case exitCode == 0:
		return Success
	default:
		return Failure
	}
}

// Failed reports whether the run did not succeed. Timeouts count as failures.
func (r Result) Failed() bool {
	return r.Kind != Success
}

// Output renders the run the way the corrector sees it. A timeout reads
// "Program Timed Out".
func (r Result) Output() string {
	status := "Succeeded"
	switch r.Kind {
	case Success:
	case Timeout:
		status = "Timed Out"
	default:
		status = "Failed"
	}
	return fmt.Sprintf("Program %s\nStdout:%s\nStderr:%s", status, r.Stdout, r.Stderr)
}

// Message returns the tagged outcome text recorded in the run log and
// passed to the corrector.
func (r Result) Message() string {
	if r.Failed() {
		return "Task Failed: " + r.Output()
	}
	return "Task Success: " + r.Output()
}

// markTimeout turns r into a Timeout result and notes the limit in Stderr
// unless the runner already did.
func (r *Result) markTimeout(limit time.Duration) {
	r.Kind = Timeout
	r.ExitCode = -1
	if strings.Contains(r.Stderr, "timed out") {
		return
	}
	if r.Stderr != "" && !strings.HasSuffix(r.Stderr, "\n") {
		r.Stderr += "\n"
	}
	r.Stderr += fmt.Sprintf("execution timed out after %g seconds", limit.Seconds())
}
