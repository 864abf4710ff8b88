// Package jsonfile keeps runs in a single JSON file holding an array of
// run objects, the layout experiment logs have always used. The whole file
// is rewritten on every change through a temp file and rename, so readers
// never see a partial array.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/storage"
)

// fileRun is one array element. Tenant is added next to the run fields.
type fileRun struct {
	Tenant string `json:"Tenant,omitempty"`
	*api.Run
}

// Store is a RunStore backed by one JSON file.
type Store struct {
	mu   sync.Mutex
	path string
	runs []fileRun
}

var _ storage.RunStore = (*Store)(nil)

// New loads path. A missing file is an empty store and is created on the
// first write.
func New(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.runs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i := range s.runs {
		if s.runs[i].Run == nil {
			return nil, fmt.Errorf("parsing %s: element %d is not a run", path, i)
		}
	}
	return s, nil
}

// SaveRun appends a run to the file.
func (s *Store) SaveRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.runs {
		if r.RunID == run.RunID {
			return storage.ErrConflict
		}
	}
	next := append(s.runs[:len(s.runs):len(s.runs)], fileRun{Tenant: storage.GetTenant(ctx), Run: storage.CloneRun(run)})
	if err := s.write(next); err != nil {
		return err
	}
	s.runs = next
	return nil
}

// AppendTask adds a task to a run and rewrites the file.
func (s *Store) AppendTask(ctx context.Context, runID string, task *api.TaskLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(ctx, runID)
	if err != nil {
		return err
	}
	updated := storage.CloneRun(s.runs[i].Run)
	updated.Tasks = append(updated.Tasks, *task)

	next := append([]fileRun{}, s.runs...)
	next[i] = fileRun{Tenant: s.runs[i].Tenant, Run: updated}
	if err := s.write(next); err != nil {
		return err
	}
	s.runs = next
	return nil
}

// GetRun returns a copy of the run.
func (s *Store) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return storage.CloneRun(s.runs[i].Run), nil
}

// ListRuns pages through the runs visible to the context tenant.
func (s *Store) ListRuns(ctx context.Context, opts storage.ListOptions) (*storage.RunList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant := storage.GetTenant(ctx)
	var entries []storage.Entry
	for _, r := range s.runs {
		if storage.Visible(r.Tenant, tenant) {
			entries = append(entries, storage.Entry{Tenant: r.Tenant, Run: storage.CloneRun(r.Run)})
		}
	}
	return storage.Paginate(entries, opts), nil
}

// DeleteRun removes a run and rewrites the file.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	next := make([]fileRun, 0, len(s.runs)-1)
	next = append(next, s.runs[:i]...)
	next = append(next, s.runs[i+1:]...)
	if err := s.write(next); err != nil {
		return err
	}
	s.runs = next
	return nil
}

// HealthCheck reports whether the directory of the file is usable.
func (s *Store) HealthCheck(_ context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("run log directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("run log directory %s is not a directory", dir)
	}
	return nil
}

// Close is a no-op; every change is already on disk.
func (s *Store) Close() error {
	return nil
}

func (s *Store) find(ctx context.Context, id string) (int, error) {
	tenant := storage.GetTenant(ctx)
	for i, r := range s.runs {
		if r.RunID == id && storage.Visible(r.Tenant, tenant) {
			return i, nil
		}
	}
	return -1, storage.ErrNotFound
}

// write replaces the file with runs. The temp file lives next to the
// target so the rename stays on one filesystem.
func (s *Store) write(runs []fileRun) error {
	if runs == nil {
		runs = []fileRun{}
	}
	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding runs: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
