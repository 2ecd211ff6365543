package janitor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/stager/pkg/config"
	"github.com/platinummonkey/stager/pkg/tasks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type failingStore struct {
	tasks.Store
}

func (failingStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, errors.New("store unavailable")
}

func seedTask(t *testing.T, store tasks.Store, state tasks.State, updated time.Time) *tasks.Task {
	t.Helper()
	task := tasks.New(1, "app", "ctrl")
	task.State = state
	task.CreatedAt = updated
	task.UpdatedAt = updated
	require.NoError(t, store.Create(context.Background(), task))
	return task
}

func makeWorkspace(t *testing.T, root, name string, modified time.Time) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.Chtimes(dir, modified, modified))
}

func TestSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := tasks.NewMemoryStore()
	root := t.TempDir()

	old := seedTask(t, store, tasks.StateDone, now.Add(-48*time.Hour))
	oldFailed := seedTask(t, store, tasks.StateFailed, now.Add(-48*time.Hour))
	stuck := seedTask(t, store, tasks.StateRunning, now.Add(-48*time.Hour))
	recent := seedTask(t, store, tasks.StateDone, now.Add(-time.Hour))

	makeWorkspace(t, root, "stale", now.Add(-3*time.Hour))
	makeWorkspace(t, root, "active", now.Add(-time.Minute))

	j := New(store, root, config.JanitorConfig{
		TaskRetention:      24 * time.Hour,
		WorkspaceRetention: 2 * time.Hour,
	}, quietLog())
	j.now = func() time.Time { return now }

	res, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.TasksDeleted)
	assert.Equal(t, []string{"stale"}, res.WorkspacesPruned)

	for _, gone := range []*tasks.Task{old, oldFailed} {
		_, err := store.Get(context.Background(), gone.ID)
		assert.ErrorIs(t, err, tasks.ErrTaskNotFound)
	}
	for _, kept := range []*tasks.Task{stuck, recent} {
		_, err := store.Get(context.Background(), kept.ID)
		assert.NoError(t, err)
	}
	assert.NoDirExists(t, filepath.Join(root, "stale"))
	assert.DirExists(t, filepath.Join(root, "active"))
}

func TestSweep_ZeroRetentionDisables(t *testing.T) {
	now := time.Now()
	store := tasks.NewMemoryStore()
	root := t.TempDir()
	task := seedTask(t, store, tasks.StateDone, now.Add(-1000*time.Hour))
	makeWorkspace(t, root, "old", now.Add(-1000*time.Hour))

	j := New(store, root, config.JanitorConfig{}, quietLog())

	res, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TasksDeleted)
	assert.Empty(t, res.WorkspacesPruned)

	_, err = store.Get(context.Background(), task.ID)
	assert.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "old"))
}

func TestSweep_PrunesWorkspacesWhenStoreFails(t *testing.T) {
	now := time.Now()
	root := t.TempDir()
	makeWorkspace(t, root, "stale", now.Add(-3*time.Hour))

	j := New(failingStore{}, root, config.JanitorConfig{
		TaskRetention:      time.Hour,
		WorkspaceRetention: time.Hour,
	}, quietLog())

	res, err := j.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
	assert.Equal(t, []string{"stale"}, res.WorkspacesPruned)
}

func TestStart(t *testing.T) {
	now := time.Now()
	store := tasks.NewMemoryStore()
	task := seedTask(t, store, tasks.StateDone, now.Add(-48*time.Hour))

	j := New(store, t.TempDir(), config.JanitorConfig{
		Schedule:      "@hourly",
		TaskRetention: 24 * time.Hour,
	}, quietLog())

	require.NoError(t, j.Start(context.Background()))
	defer func() { <-j.Stop().Done() }()

	assert.Error(t, j.Start(context.Background()), "second start")

	// the initial sweep runs without waiting for the schedule
	assert.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), task.ID)
		return errors.Is(err, tasks.ErrTaskNotFound)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStart_InvalidSchedule(t *testing.T) {
	j := New(tasks.NewMemoryStore(), "", config.JanitorConfig{Schedule: "not a schedule"}, quietLog())
	assert.Error(t, j.Start(context.Background()))
}

func TestStop_NotStarted(t *testing.T) {
	j := New(tasks.NewMemoryStore(), "", config.JanitorConfig{}, quietLog())
	select {
	case <-j.Stop().Done():
	default:
		t.Fatal("Stop on an unstarted janitor should return a done context")
	}
}
