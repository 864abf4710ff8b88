// Package remote provides a sandbox.Runner that executes code on a sandbox
// server through its REST API. Dependencies registered on the environment
// are sent as requirements with every execution request.
package remote

// ExecuteRequest is the request body for POST /execute on the sandbox server.
type ExecuteRequest struct {
	Code           string            `json:"code"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Requirements   []string          `json:"requirements,omitempty"`
	Files          map[string]string `json:"files,omitempty"`
}

// InstallRequest is the request body for POST /install. The server
// installs the requirements into a throwaway environment and reports the
// installer output in an ExecuteResponse.
type InstallRequest struct {
	Requirements   []string `json:"requirements"`
	TimeoutSeconds int      `json:"timeout_seconds"`
}

// ExecuteResponse is the response from POST /execute and POST /install on
// the sandbox server.
// Status is one of "success", "error" or "timeout".
type ExecuteResponse struct {
	Status          string            `json:"status"`
	Stdout          string            `json:"stdout"`
	Stderr          string            `json:"stderr"`
	ExitCode        int               `json:"exit_code"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
	FilesProduced   map[string]string `json:"files_produced,omitempty"`
}

// Status values reported by the sandbox server.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)
