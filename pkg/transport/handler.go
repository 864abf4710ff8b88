package transport

import (
	"context"

	"github.com/rhuss/codinit/pkg/api"
)

// TaskRunner handles the core generate-code operation. The implementation
// receives a task and writes its progress messages to the MessageWriter,
// ending with a message that has IsFinal set.
type TaskRunner interface {
	RunTask(ctx context.Context, req *api.TaskRequest, w MessageWriter) error
}

// TaskRunnerFunc is an adapter that allows using an ordinary function
// as a TaskRunner.
type TaskRunnerFunc func(ctx context.Context, req *api.TaskRequest, w MessageWriter) error

// RunTask calls f(ctx, req, w).
func (f TaskRunnerFunc) RunTask(ctx context.Context, req *api.TaskRequest, w MessageWriter) error {
	return f(ctx, req, w)
}

// MessageWriter delivers progress messages to one client. The transport
// layer creates a MessageWriter for each task.
//
// Calling WriteMessage after a message with IsFinal set returns
// ErrStreamClosed.
type MessageWriter interface {
	// WriteMessage sends a single progress message.
	WriteMessage(ctx context.Context, msg api.StreamMessage) error

	// Flush ensures buffered data is sent to the client. Returns an error
	// if the client has disconnected.
	Flush() error
}
