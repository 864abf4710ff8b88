package api

import "strings"

// TaskRequest is a task submitted to the streaming endpoints.
// Prompt is accepted as an alias of Task for older clients.
type TaskRequest struct {
	Task       string   `json:"task,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Libraries  []string `json:"libraries,omitempty"`
	SourceCode string   `json:"source_code,omitempty"`
}

// Text returns the task description, preferring Task over Prompt.
func (r *TaskRequest) Text() string {
	if t := strings.TrimSpace(r.Task); t != "" {
		return t
	}
	return strings.TrimSpace(r.Prompt)
}

// Validate checks that the request carries a task description.
func (r *TaskRequest) Validate() *APIError {
	if r.Text() == "" {
		return NewInvalidRequestError("task", "task is required")
	}
	return nil
}

// StreamMessage reports the progress of a running task. One message is
// sent per pipeline stage and generation attempt; the last one has
// IsFinal set.
type StreamMessage struct {
	Plan    string `json:"plan"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	IsFinal bool   `json:"is_final"`
}
