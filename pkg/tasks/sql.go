package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Driver names accepted by OpenSQL
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Placeholders are numbered and used once each, in ascending order, so the
// same statements run on postgres and sqlite.
const (
	schemaSQL = `
	CREATE TABLE IF NOT EXISTS staging_tasks (
		id VARCHAR(64) PRIMARY KEY,
		app_id BIGINT NOT NULL,
		app_name VARCHAR(255) NOT NULL,
		controller_task_id VARCHAR(255) NOT NULL,
		state VARCHAR(20) NOT NULL,
		stage VARCHAR(40) NOT NULL,
		error TEXT NOT NULL,
		droplet_key TEXT NOT NULL,
		droplet_sha VARCHAR(64) NOT NULL,
		cache_hit BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_staging_tasks_created_at ON staging_tasks(created_at);
	CREATE INDEX IF NOT EXISTS idx_staging_tasks_updated_at ON staging_tasks(updated_at);
	`

	taskColumns = `id, app_id, app_name, controller_task_id, state, stage, error,
		droplet_key, droplet_sha, cache_hit, created_at, updated_at`

	insertTaskSQL = `
		INSERT INTO staging_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	updateTaskSQL = `
		UPDATE staging_tasks
		SET state = $1, stage = $2, error = $3, droplet_key = $4, droplet_sha = $5,
			cache_hit = $6, updated_at = $7
		WHERE id = $8
	`

	getTaskSQL = `SELECT ` + taskColumns + ` FROM staging_tasks WHERE id = $1`

	listTasksSQL = `SELECT ` + taskColumns + ` FROM staging_tasks ORDER BY created_at DESC, id ASC LIMIT $1`

	deleteTasksSQL = `DELETE FROM staging_tasks WHERE updated_at < $1 AND state IN ('done', 'failed')`
)

// SQLStore keeps tasks in a database/sql database
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens a postgres or sqlite3 database and migrates it
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection also keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	store, err := NewSQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps db and ensures the staging_tasks table exists
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure staging_tasks table: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// DB exposes the connection for health checks
func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Create(ctx context.Context, t *Task) error {
	if err := validate(t); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, insertTaskSQL,
		t.ID, t.AppID, t.AppName, t.ControllerTaskID,
		string(t.State), t.Stage, t.Error,
		t.DropletKey, t.DropletSHA, t.CacheHit,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, t *Task) error {
	if err := validate(t); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, updateTaskSQL,
		string(t.State), t.Stage, t.Error,
		t.DropletKey, t.DropletSHA, t.CacheHit,
		t.UpdatedAt.UTC(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, getTaskSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		// LIMIT -1 is not portable, so use the largest int32
		limit = int(^uint32(0) >> 1)
	}

	rows, err := s.db.QueryContext(ctx, listTasksSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	out := []*Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return out, nil
}

func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, deleteTasksSQL, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	return int(n), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var state string
	err := row.Scan(
		&t.ID, &t.AppID, &t.AppName, &t.ControllerTaskID,
		&state, &t.Stage, &t.Error,
		&t.DropletKey, &t.DropletSHA, &t.CacheHit,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.State = State(state)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
