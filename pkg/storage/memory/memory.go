// Package memory provides an in-memory storage.RunStore for tests and
// single-process deployments. Runs are lost when the process exits.
// Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/storage"
)

// entry holds a stored run and its metadata.
type entry struct {
	run      *api.Run
	tenantID string
	lruElem  *list.Element // position in LRU list
}

// Store is an in-memory RunStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ storage.RunStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. Otherwise the least recently used run is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveRun stores a copy of run.
func (s *Store) SaveRun(ctx context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[run.RunID]; exists {
		return storage.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(run.RunID)
	s.entries[run.RunID] = &entry{
		run:      storage.CloneRun(run),
		tenantID: storage.GetTenant(ctx),
		lruElem:  elem,
	}
	return nil
}

// AppendTask adds task to the run's task list.
func (s *Store) AppendTask(ctx context.Context, runID string, task *api.TaskLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, runID)
	if err != nil {
		return err
	}
	e.run.Tasks = append(e.run.Tasks, *task)
	s.lruList.MoveToFront(e.lruElem)
	return nil
}

// GetRun returns a copy of the run.
func (s *Store) GetRun(ctx context.Context, id string) (*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	s.lruList.MoveToFront(e.lruElem)
	return storage.CloneRun(e.run), nil
}

// ListRuns returns a page of runs visible to the context tenant.
func (s *Store) ListRuns(ctx context.Context, opts storage.ListOptions) (*storage.RunList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)
	var matches []storage.Entry
	for _, e := range s.entries {
		if !storage.Visible(e.tenantID, tenantID) {
			continue
		}
		matches = append(matches, storage.Entry{Tenant: e.tenantID, Run: storage.CloneRun(e.run)})
	}
	return storage.Paginate(matches, opts), nil
}

// DeleteRun removes the run.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored runs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// lookup finds a run visible to the context tenant. Callers hold the lock.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	e, ok := s.entries[id]
	if !ok || !storage.Visible(e.tenantID, storage.GetTenant(ctx)) {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// evictOldest removes the least recently used entry. Caller must hold the
// write lock.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
