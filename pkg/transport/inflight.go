package transport

import (
	"context"
	"sync"
)

// InFlightRegistry maps the request IDs of running tasks to their cancel
// functions. It is safe for concurrent use.
type InFlightRegistry struct {
	tasks sync.Map // string -> context.CancelFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{}
}

// Register records a running task. A second Register for the same ID
// replaces the first.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.tasks.Store(id, cancel)
}

// Cancel stops the task and forgets it. It reports false when the task has
// already finished or was never registered.
func (r *InFlightRegistry) Cancel(id string) bool {
	v, ok := r.tasks.LoadAndDelete(id)
	if !ok {
		return false
	}
	v.(context.CancelFunc)()
	return true
}

// Remove forgets a task that finished on its own.
func (r *InFlightRegistry) Remove(id string) {
	r.tasks.Delete(id)
}

func (r *InFlightRegistry) Len() int {
	n := 0
	r.tasks.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
