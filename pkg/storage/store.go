package storage

import (
	"context"
	"sort"
	"time"

	"github.com/rhuss/codinit/pkg/api"
)

// RunStore persists experiment runs and their task logs. Implementations
// scope every operation to the tenant found in the context, if any.
type RunStore interface {
	// SaveRun stores a new run. Returns ErrConflict if the ID is taken.
	SaveRun(ctx context.Context, run *api.Run) error

	// AppendTask adds a task log to an existing run. Returns ErrNotFound
	// if the run does not exist.
	AppendTask(ctx context.Context, runID string, task *api.TaskLog) error

	// GetRun returns the run with all its tasks.
	GetRun(ctx context.Context, id string) (*api.Run, error)

	// ListRuns returns runs ordered by timestamp.
	ListRuns(ctx context.Context, opts ListOptions) (*RunList, error)

	// DeleteRun removes a run and its tasks.
	DeleteRun(ctx context.Context, id string) error

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ListOptions controls pagination and ordering for ListRuns.
type ListOptions struct {
	After string // Cursor: return runs after this ID.
	Limit int    // Maximum number of runs (default 20, max 100).
	Order string // "asc" or "desc" (default "desc").
}

// RunList is one page of runs.
type RunList struct {
	Object  string     `json:"object"`
	Data    []*api.Run `json:"data"`
	HasMore bool       `json:"has_more"`
	FirstID string     `json:"first_id"`
	LastID  string     `json:"last_id"`
}

// Normalize fills in defaults and clamps the limit.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Order != "asc" {
		o.Order = "desc"
	}
	return o
}

// Entry is a run as held by in-process backends, tagged with its tenant.
type Entry struct {
	Tenant string   `json:"tenant,omitempty"`
	Run    *api.Run `json:"run"`
}

// Paginate sorts entries by run timestamp (ties broken by ID), applies the
// cursor and limit, and builds the page. Entries of other tenants must be
// filtered out by the caller.
func Paginate(entries []Entry, opts ListOptions) *RunList {
	opts = opts.Normalize()
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Run, entries[j].Run
		if !a.Timestamp.Equal(b.Timestamp) {
			if opts.Order == "asc" {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.Timestamp.After(b.Timestamp)
		}
		if opts.Order == "asc" {
			return a.RunID < b.RunID
		}
		return a.RunID > b.RunID
	})

	// An unknown cursor yields an empty page.
	start := 0
	if opts.After != "" {
		start = len(entries)
		for i, e := range entries {
			if e.Run.RunID == opts.After {
				start = i + 1
				break
			}
		}
	}
	entries = entries[start:]

	list := &RunList{Object: "list", Data: []*api.Run{}}
	if len(entries) > opts.Limit {
		list.HasMore = true
		entries = entries[:opts.Limit]
	}
	for _, e := range entries {
		list.Data = append(list.Data, e.Run)
	}
	if n := len(list.Data); n > 0 {
		list.FirstID = list.Data[0].RunID
		list.LastID = list.Data[n-1].RunID
	}
	return list
}

// NewRun returns an empty run with a fresh ID and the current time.
func NewRun(gitSHA, commitMessage string) *api.Run {
	return &api.Run{
		Timestamp:     time.Now().UTC(),
		RunID:         api.NewRunID(),
		GitSHA:        gitSHA,
		CommitMessage: commitMessage,
		Tasks:         []api.TaskLog{},
	}
}

// CloneRun copies a run and its task slice so callers cannot mutate stored
// state. Task contents are shared.
func CloneRun(r *api.Run) *api.Run {
	if r == nil {
		return nil
	}
	c := *r
	c.Tasks = append([]api.TaskLog{}, r.Tasks...)
	return &c
}

// Visible reports whether a run owned by owner is visible to tenant. An
// empty tenant sees everything.
func Visible(owner, tenant string) bool {
	return tenant == "" || owner == tenant
}
