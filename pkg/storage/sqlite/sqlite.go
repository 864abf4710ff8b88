// Package sqlite implements storage.RunStore on a local SQLite file using
// the pure-Go modernc driver. Task logs are stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL DEFAULT '',
	git_sha TEXT NOT NULL DEFAULT '',
	commit_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs (created_at, id);
CREATE TABLE IF NOT EXISTS run_tasks (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	task_id INTEGER NOT NULL,
	metric INTEGER NOT NULL DEFAULT 0,
	log TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// Store is a SQLite-backed RunStore.
type Store struct {
	db *sql.DB
}

var _ storage.RunStore = (*Store)(nil)

// New opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" a
	// single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun inserts the run and any tasks it already carries.
func (s *Store) SaveRun(ctx context.Context, run *api.Run) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, tenant_id, git_sha, commit_message, created_at) VALUES (?, ?, ?, ?, ?)`,
			run.RunID, storage.GetTenant(ctx), run.GitSHA, run.CommitMessage, run.Timestamp.UnixNano())
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrConflict
			}
			return fmt.Errorf("inserting run: %w", err)
		}
		for i := range run.Tasks {
			if err := insertTask(ctx, tx, run.RunID, i, &run.Tasks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendTask adds a task log at the end of the run.
func (s *Store) AppendTask(ctx context.Context, runID string, task *api.TaskLog) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if err := visible(ctx, tx, runID); err != nil {
			return err
		}
		var next int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM run_tasks WHERE run_id = ?`, runID,
		).Scan(&next); err != nil {
			return fmt.Errorf("reading task position: %w", err)
		}
		return insertTask(ctx, tx, runID, next, task)
	})
}

// GetRun retrieves a run with its tasks.
func (s *Store) GetRun(ctx context.Context, id string) (*api.Run, error) {
	query := `SELECT id, tenant_id, git_sha, commit_message, created_at FROM runs WHERE id = ?`
	var tenant string
	var created int64
	run := &api.Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&run.RunID, &tenant, &run.GitSHA, &run.CommitMessage, &created)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !storage.Visible(tenant, storage.GetTenant(ctx))) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	run.Timestamp = time.Unix(0, created).UTC()

	if err := s.loadTasks(ctx, []*api.Run{run}); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns loads the tenant's runs and pages through them with
// storage.Paginate.
func (s *Store) ListRuns(ctx context.Context, opts storage.ListOptions) (*storage.RunList, error) {
	query := `SELECT id, tenant_id, git_sha, commit_message, created_at FROM runs`
	var args []any
	if tenant := storage.GetTenant(ctx); tenant != "" {
		query += ` WHERE tenant_id = ?`
		args = append(args, tenant)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	var entries []storage.Entry
	for rows.Next() {
		var e storage.Entry
		var created int64
		e.Run = &api.Run{}
		if err := rows.Scan(&e.Run.RunID, &e.Tenant, &e.Run.GitSHA, &e.Run.CommitMessage, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		e.Run.Timestamp = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	list := storage.Paginate(entries, opts)
	if err := s.loadTasks(ctx, list.Data); err != nil {
		return nil, err
	}
	return list, nil
}

// DeleteRun removes the run and its tasks.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if err := visible(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_tasks WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("deleting tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting run: %w", err)
		}
		return nil
	})
}

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// loadTasks fills the task lists of runs in position order.
func (s *Store) loadTasks(ctx context.Context, runs []*api.Run) error {
	if len(runs) == 0 {
		return nil
	}
	byID := make(map[string]*api.Run, len(runs))
	args := make([]any, 0, len(runs))
	for _, r := range runs {
		r.Tasks = []api.TaskLog{}
		byID[r.RunID] = r
		args = append(args, r.RunID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(runs)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, log FROM run_tasks WHERE run_id IN (`+placeholders+`) ORDER BY run_id, position`, args...)
	if err != nil {
		return fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runID, logJSON string
		if err := rows.Scan(&runID, &logJSON); err != nil {
			return fmt.Errorf("scanning task: %w", err)
		}
		var task api.TaskLog
		if err := json.Unmarshal([]byte(logJSON), &task); err != nil {
			return fmt.Errorf("unmarshaling task log: %w", err)
		}
		byID[runID].Tasks = append(byID[runID].Tasks, task)
	}
	return rows.Err()
}

func insertTask(ctx context.Context, tx *sql.Tx, runID string, position int, task *api.TaskLog) error {
	logJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task log: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_tasks (run_id, position, task_id, metric, log) VALUES (?, ?, ?, ?, ?)`,
		runID, position, task.TaskID, task.Metric, string(logJSON))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// visible returns ErrNotFound unless the run exists for the context tenant.
func visible(ctx context.Context, tx *sql.Tx, id string) error {
	var tenant string
	err := tx.QueryRowContext(ctx, `SELECT tenant_id FROM runs WHERE id = ?`, id).Scan(&tenant)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !storage.Visible(tenant, storage.GetTenant(ctx))) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying run: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
