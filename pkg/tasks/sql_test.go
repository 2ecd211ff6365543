package tasks

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockSQLStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS staging_tasks")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewSQLStore(context.Background(), db)
	require.NoError(t, err)
	return store, mock
}

func TestNewSQLStore(t *testing.T) {
	t.Run("nil db", func(t *testing.T) {
		_, err := NewSQLStore(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("migration failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

		_, err = NewSQLStore(context.Background(), db)
		assert.ErrorContains(t, err, "permission denied")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLStore_Create(t *testing.T) {
	ctx := context.Background()
	task := New(3, "testapp", "ctrl")

	t.Run("inserts every column", func(t *testing.T) {
		store, mock := newMockSQLStore(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO staging_tasks")).
			WithArgs(task.ID, int64(3), "testapp", "ctrl", "pending", "", "", "", "", false,
				task.CreatedAt, task.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.Create(ctx, task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres unique violation", func(t *testing.T) {
		store, mock := newMockSQLStore(t)
		mock.ExpectExec("INSERT INTO staging_tasks").
			WillReturnError(&pq.Error{Code: "23505"})

		assert.ErrorIs(t, store.Create(ctx, task), ErrTaskExists)
	})

	t.Run("other failure", func(t *testing.T) {
		store, mock := newMockSQLStore(t)
		mock.ExpectExec("INSERT INTO staging_tasks").
			WillReturnError(errors.New("connection reset"))

		err := store.Create(ctx, task)
		assert.ErrorContains(t, err, "connection reset")
		assert.NotErrorIs(t, err, ErrTaskExists)
	})
}

func TestSQLStore_Update(t *testing.T) {
	ctx := context.Background()
	task := New(3, "testapp", "ctrl")
	task.State = StateFailed
	task.Error = "boom"

	t.Run("updates mutable columns", func(t *testing.T) {
		store, mock := newMockSQLStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE staging_tasks")).
			WithArgs("failed", "", "boom", "", "", false, task.UpdatedAt, task.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Update(ctx, task))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows", func(t *testing.T) {
		store, mock := newMockSQLStore(t)
		mock.ExpectExec("UPDATE staging_tasks").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Update(ctx, task), ErrTaskNotFound)
	})
}

func TestSQLStore_Get(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	columns := []string{"id", "app_id", "app_name", "controller_task_id", "state", "stage", "error",
		"droplet_key", "droplet_sha", "cache_hit", "created_at", "updated_at"}

	t.Run("found", func(t *testing.T) {
		store, mock := newMockSQLStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM staging_tasks WHERE id = $1")).
			WithArgs("t1").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("t1", int64(9), "app", "c", "done", "complete", "", "droplets/9/t1/droplet.tgz", "sha", true, now, now))

		got, err := store.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, StateDone, got.State)
		assert.Equal(t, int64(9), got.AppID)
		assert.True(t, got.CacheHit)
		assert.Equal(t, now, got.CreatedAt)
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockSQLStore(t)
		mock.ExpectQuery("FROM staging_tasks").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := store.Get(ctx, "t1")
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestSQLStore_DeleteBefore(t *testing.T) {
	store, mock := newMockSQLStore(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM staging_tasks WHERE updated_at < $1 AND state IN ('done', 'failed')")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres other", &pq.Error{Code: "23503"}, false},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, true},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}
