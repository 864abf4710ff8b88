// Package postgres provides a PostgreSQL implementation of storage.RunStore.
// It uses pgx/v5 for connection pooling and JSONB for task logs.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/storage"
)

// Store is a PostgreSQL-backed RunStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.RunStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = min(cfg.MinConns, cfg.MaxConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveRun inserts the run and any tasks it already carries.
func (s *Store) SaveRun(ctx context.Context, run *api.Run) error {
	tenantID := storage.GetTenant(ctx)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO runs (id, tenant_id, git_sha, commit_message, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, run.RunID, tenantID, run.GitSHA, run.CommitMessage, run.Timestamp)
		if err != nil {
			if isDuplicateKey(err) {
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
	tenantID := storage.GetTenant(ctx)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the run row so concurrent appends get distinct positions.
		query := "SELECT id FROM runs WHERE id = $1"
		args := []any{runID}
		if tenantID != "" {
			query += " AND tenant_id = $2"
			args = append(args, tenantID)
		}
		var id string
		err := tx.QueryRow(ctx, query+" FOR UPDATE", args...).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking run: %w", err)
		}

		var next int
		if err := tx.QueryRow(ctx,
			"SELECT COALESCE(MAX(position) + 1, 0) FROM run_tasks WHERE run_id = $1", runID,
		).Scan(&next); err != nil {
			return fmt.Errorf("reading task position: %w", err)
		}
		return insertTask(ctx, tx, runID, next, task)
	})
}

func insertTask(ctx context.Context, tx pgx.Tx, runID string, position int, task *api.TaskLog) error {
	logJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task log: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO run_tasks (run_id, position, task_id, metric, succeeded, log)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, runID, position, task.TaskID, task.Metric, task.Succeeded, logJSON)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// GetRun retrieves a run with its tasks.
func (s *Store) GetRun(ctx context.Context, id string) (*api.Run, error) {
	tenantID := storage.GetTenant(ctx)

	query := "SELECT id, git_sha, commit_message, created_at FROM runs WHERE id = $1"
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	run := &api.Run{}
	err := s.pool.QueryRow(ctx, query, args...).Scan(&run.RunID, &run.GitSHA, &run.CommitMessage, &run.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	run.Timestamp = run.Timestamp.UTC()

	if err := s.loadTasks(ctx, map[string]*api.Run{run.RunID: run}); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns a page of runs using keyset pagination on
// (created_at, id).
func (s *Store) ListRuns(ctx context.Context, opts storage.ListOptions) (*storage.RunList, error) {
	opts = opts.Normalize()
	tenantID := storage.GetTenant(ctx)

	where := "WHERE true"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if tenantID != "" {
		where += " AND tenant_id = " + arg(tenantID)
	}

	if opts.After != "" {
		var cursorTS time.Time
		cursorQuery := "SELECT created_at FROM runs WHERE id = $1"
		cursorArgs := []any{opts.After}
		if tenantID != "" {
			cursorQuery += " AND tenant_id = $2"
			cursorArgs = append(cursorArgs, tenantID)
		}
		err := s.pool.QueryRow(ctx, cursorQuery, cursorArgs...).Scan(&cursorTS)
		if errors.Is(err, pgx.ErrNoRows) {
			return &storage.RunList{Object: "list", Data: []*api.Run{}}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolving cursor: %w", err)
		}
		cmp := "<"
		if opts.Order == "asc" {
			cmp = ">"
		}
		ts := arg(cursorTS)
		where += fmt.Sprintf(" AND (created_at, id) %s (%s, %s)", cmp, ts, arg(opts.After))
	}

	dir := "DESC"
	if opts.Order == "asc" {
		dir = "ASC"
	}
	query := fmt.Sprintf(
		"SELECT id, git_sha, commit_message, created_at FROM runs %s ORDER BY created_at %s, id %s LIMIT %s",
		where, dir, dir, arg(opts.Limit+1))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*api.Run, error) {
		r := &api.Run{}
		err := row.Scan(&r.RunID, &r.GitSHA, &r.CommitMessage, &r.Timestamp)
		r.Timestamp = r.Timestamp.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning runs: %w", err)
	}

	list := &storage.RunList{Object: "list", Data: []*api.Run{}}
	if len(runs) > opts.Limit {
		list.HasMore = true
		runs = runs[:opts.Limit]
	}
	byID := make(map[string]*api.Run, len(runs))
	for _, r := range runs {
		byID[r.RunID] = r
	}
	if err := s.loadTasks(ctx, byID); err != nil {
		return nil, err
	}
	list.Data = append(list.Data, runs...)
	if n := len(runs); n > 0 {
		list.FirstID = runs[0].RunID
		list.LastID = runs[n-1].RunID
	}
	return list, nil
}

// loadTasks fills the task lists of the given runs in position order.
func (s *Store) loadTasks(ctx context.Context, runs map[string]*api.Run) error {
	if len(runs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(runs))
	for id, r := range runs {
		ids = append(ids, id)
		r.Tasks = []api.TaskLog{}
	}

	rows, err := s.pool.Query(ctx,
		"SELECT run_id, log FROM run_tasks WHERE run_id = ANY($1) ORDER BY run_id, position", ids)
	if err != nil {
		return fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runID string
		var logJSON []byte
		if err := rows.Scan(&runID, &logJSON); err != nil {
			return fmt.Errorf("scanning task: %w", err)
		}
		var task api.TaskLog
		if err := json.Unmarshal(logJSON, &task); err != nil {
			return fmt.Errorf("unmarshaling task log: %w", err)
		}
		runs[runID].Tasks = append(runs[runID].Tasks, task)
	}
	return rows.Err()
}

// DeleteRun removes the run. Its tasks go with it through the foreign key.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tenantID := storage.GetTenant(ctx)

	query := "DELETE FROM runs WHERE id = $1"
	args := []any{id}
	if tenantID != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
