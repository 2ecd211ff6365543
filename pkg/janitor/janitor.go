// Package janitor enforces retention for staging tasks and abandoned
// workspaces on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/stager/pkg/async"
	"github.com/platinummonkey/stager/pkg/config"
	"github.com/platinummonkey/stager/pkg/tasks"
	"github.com/platinummonkey/stager/pkg/workspace"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// sweepTimeout bounds a single sweep
const sweepTimeout = 5 * time.Minute

// Result summarizes one sweep
type Result struct {
	TasksDeleted     int
	WorkspacesPruned []string
}

// Janitor deletes finished tasks and stale workspaces past their retention.
// A zero retention disables that half of the sweep.
type Janitor struct {
	tasks         tasks.Store
	workspaceRoot string
	cfg           config.JanitorConfig
	log           *logrus.Logger
	now           func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a janitor for store and the workspaces under workspaceRoot
func New(store tasks.Store, workspaceRoot string, cfg config.JanitorConfig, log *logrus.Logger) *Janitor {
	if log == nil {
		log = logrus.New()
	}
	return &Janitor{
		tasks:         store,
		workspaceRoot: workspaceRoot,
		cfg:           cfg,
		log:           log,
		now:           time.Now,
	}
}

// Sweep runs one retention pass. Workspace pruning still runs when task
// deletion fails; the first error is returned.
func (j *Janitor) Sweep(ctx context.Context) (Result, error) {
	var res Result
	var firstErr error
	now := j.now()

	if j.cfg.TaskRetention > 0 && j.tasks != nil {
		n, err := j.tasks.DeleteBefore(ctx, now.Add(-j.cfg.TaskRetention))
		if err != nil {
			firstErr = fmt.Errorf("failed to delete expired tasks: %w", err)
		}
		res.TasksDeleted = n
	}

	if j.cfg.WorkspaceRetention > 0 && j.workspaceRoot != "" {
		pruned, err := workspace.PruneStale(j.workspaceRoot, now.Add(-j.cfg.WorkspaceRetention))
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to prune workspaces: %w", err)
		}
		res.WorkspacesPruned = pruned
	}

	if res.TasksDeleted > 0 || len(res.WorkspacesPruned) > 0 {
		j.log.WithFields(logrus.Fields{
			"tasks_deleted":     res.TasksDeleted,
			"workspaces_pruned": len(res.WorkspacesPruned),
		}).Info("Retention sweep completed")
	}
	return res, firstErr
}

// Start schedules sweeps and runs the first one in the background
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return fmt.Errorf("janitor already started")
	}

	c := cron.New()
	_, err := c.AddFunc(j.cfg.Schedule, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		if _, err := j.Sweep(sweepCtx); err != nil {
			j.log.Warnf("Retention sweep failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.cfg.Schedule, err)
	}

	c.Start()
	j.cron = c
	j.log.Infof("Janitor started with schedule %s", j.cfg.Schedule)

	async.SafeGo(ctx, j.log, sweepTimeout, "initial-retention-sweep", func(ctx context.Context) error {
		_, err := j.Sweep(ctx)
		return err
	})
	return nil
}

// Stop halts the schedule. The returned context is done once a running
// sweep finishes.
func (j *Janitor) Stop() context.Context {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := j.cron.Stop()
	j.cron = nil
	return ctx
}
