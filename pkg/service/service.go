package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/platinummonkey/stager/pkg/async"
	"github.com/platinummonkey/stager/pkg/cache"
	"github.com/platinummonkey/stager/pkg/droplet"
	"github.com/platinummonkey/stager/pkg/observability"
	"github.com/platinummonkey/stager/pkg/plugins"
	"github.com/platinummonkey/stager/pkg/staging"
	"github.com/platinummonkey/stager/pkg/tasks"
	"github.com/platinummonkey/stager/pkg/workspace"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Option configures a Service
type Option func(*Service)

// WithCache enables droplet reuse for identical staging inputs
func WithCache(c *cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithMetrics records run, cache and droplet metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(log *logrus.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithConfig sets workspace, timeout and concurrency settings
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg
	}
}

// Service runs staging requests end to end: it tracks each request as a
// task, isolates it in its own workspace, runs the orchestrator and stores
// the resulting droplet.
type Service struct {
	orch     *staging.Orchestrator
	tasks    tasks.Store
	droplets droplet.Store
	cache    *cache.Cache
	metrics  *observability.Metrics
	log      *logrus.Logger
	cfg      Config
	pool     *async.WorkerPool
}

// New creates a service and starts its worker pool. Call Shutdown to stop it.
func New(orch *staging.Orchestrator, taskStore tasks.Store, droplets droplet.Store, opts ...Option) *Service {
	s := &Service{
		orch:     orch,
		tasks:    taskStore,
		droplets: droplets,
		log:      logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg.setDefaults()

	// queued jobs get time to pack and upload after the orchestrator's own limit
	s.pool = async.NewWorkerPool(context.Background(), s.cfg.MaxParallel, s.cfg.QueueSize,
		"staging", 2*s.cfg.RunTimeout, s.log)
	return s
}

// Stage runs req synchronously. The returned task reflects the final state
// and is non-nil whenever the request passed validation, including when the
// run failed.
func (s *Service) Stage(ctx context.Context, req Request) (*tasks.Task, error) {
	task, err := s.accept(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, req, task)
}

// Submit records a pending task for req and queues it. The task is returned
// immediately; poll Get for progress.
func (s *Service) Submit(ctx context.Context, req Request) (*tasks.Task, error) {
	task, err := s.accept(ctx, req)
	if err != nil {
		return nil, err
	}

	queued := task.Clone()
	err = s.pool.Submit(func(ctx context.Context) error {
		_, err := s.execute(ctx, req, queued)
		return err
	})
	if err != nil {
		reason := ErrBusy
		if errors.Is(err, async.ErrPoolClosed) {
			reason = ErrShuttingDown
		}
		s.finish(ctx, queued, reason)
		return nil, reason
	}

	s.log.WithFields(logrus.Fields{"task_id": task.ID, "app": req.App.Name}).Info("Staging request queued")
	return task, nil
}

// StageAll stages reqs with at most MaxParallel runs at once. Results are
// in request order; the first error is returned after every run finishes.
func (s *Service) StageAll(ctx context.Context, reqs []Request) ([]*tasks.Task, error) {
	results := make([]*tasks.Task, len(reqs))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallel)
	for i, req := range reqs {
		g.Go(func() error {
			task, err := s.Stage(ctx, req)
			results[i] = task
			return err
		})
	}

	return results, g.Wait()
}

// Get returns a task by ID
func (s *Service) Get(ctx context.Context, id string) (*tasks.Task, error) {
	return s.tasks.Get(ctx, id)
}

// List returns the most recent tasks
func (s *Service) List(ctx context.Context, limit int) ([]*tasks.Task, error) {
	return s.tasks.List(ctx, limit)
}

// Plan resolves and validates the plugin set for desc without staging
func (s *Service) Plan(desc app.Descriptor) (*plugins.PluginSet, error) {
	return s.orch.Plan(desc)
}

// Plugins describes every registered plugin, ambient ones first
func (s *Service) Plugins() []plugins.Info {
	infos := s.orch.Catalog()
	if infos == nil {
		return []plugins.Info{}
	}
	return infos
}

// DropletURL returns a download location for a finished task's droplet
func (s *Service) DropletURL(ctx context.Context, task *tasks.Task, ttl time.Duration) (string, error) {
	if task.DropletKey == "" {
		return "", fmt.Errorf("%w: task %s has no droplet", droplet.ErrDropletNotFound, task.ID)
	}
	return s.droplets.URL(ctx, task.DropletKey, ttl)
}

// Queued returns the number of submitted requests waiting for a worker
func (s *Service) Queued() int {
	return s.pool.Queued()
}

// Shutdown stops accepting submissions and waits for queued runs
func (s *Service) Shutdown(timeout time.Duration) error {
	return s.pool.Shutdown(timeout)
}

func (s *Service) accept(ctx context.Context, req Request) (*tasks.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	task := tasks.New(req.App.ID, req.App.Name, req.Controller.TaskID)
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to record task: %w", err)
	}
	return task, nil
}

func (s *Service) execute(ctx context.Context, req Request, task *tasks.Task) (*tasks.Task, error) {
	defer s.metrics.TrackInFlight()()

	ctx = observability.WithTaskID(ctx, task.ID)
	log := s.log.WithFields(logrus.Fields{
		"task_id": task.ID,
		"app":     req.App.Name,
	})
	start := time.Now()

	task.State = tasks.StateRunning
	s.progress(ctx, task, StagePreparing)

	ws, err := workspace.Create(s.cfg.WorkspaceRoot, task.ID)
	if err != nil {
		return s.fail(ctx, task, start, err)
	}
	defer func() {
		if s.cfg.KeepWorkspaces {
			log.Infof("Keeping workspace %s", ws.Root)
			return
		}
		if err := ws.Remove(); err != nil {
			log.Warnf("Failed to remove workspace %s: %v", ws.Root, err)
		}
	}()

	if err := workspace.CopyTree(req.SourceDir, ws.Src); err != nil {
		return s.fail(ctx, task, start, fmt.Errorf("failed to copy source: %w", err))
	}

	key := s.cacheKey(ctx, task, ws.Src, req.App, log)
	if key != nil {
		if hit := s.lookup(ctx, key, log); hit != nil {
			task.DropletKey = hit.DropletKey
			task.DropletSHA = hit.Sha256
			task.CacheHit = true
			s.metrics.RecordRun(observability.OutcomeCacheHit, time.Since(start))
			log.Infof("Reused droplet %s", hit.DropletKey)
			return s.complete(ctx, task)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()
	runCtx = staging.ObserveTransitions(runCtx, func(tr staging.Transition) {
		if tr.To.Terminal() {
			return
		}
		stage := string(tr.To)
		if tr.Plugin != "" {
			stage += ":" + tr.Plugin
		}
		s.progress(ctx, task, stage)
	})

	if _, err := s.orch.RunPlugins(runCtx, ws.Src, ws.Dst, req.App, req.Controller); err != nil {
		return s.fail(ctx, task, start, err)
	}

	s.progress(ctx, task, StagePacking)
	archive, err := droplet.Pack(ws.Dst)
	if err != nil {
		return s.fail(ctx, task, start, err)
	}
	s.metrics.RecordDroplet(archive.Size)

	s.progress(ctx, task, StageUploading)
	obj, err := s.droplets.Put(ctx, droplet.Key(req.App.ID, task.ID), archive, map[string]string{
		"app":       req.App.Name,
		"task":      task.ID,
		"framework": req.App.Framework,
		"runtime":   req.App.Runtime,
	})
	if err != nil {
		return s.fail(ctx, task, start, err)
	}

	task.DropletKey = obj.Key
	task.DropletSHA = obj.Sha256

	if key != nil {
		entry := &cache.Entry{DropletKey: obj.Key, Sha256: obj.Sha256, Size: obj.Size, CreatedAt: time.Now().UTC()}
		if err := s.cache.Set(ctx, key, entry); err != nil {
			log.Warnf("Failed to cache droplet: %v", err)
		}
	}

	s.metrics.RecordRun(observability.OutcomeSuccess, time.Since(start))
	log.Infof("Staged droplet %s (%d files, %d bytes)", obj.Key, archive.Files, obj.Size)
	return s.complete(ctx, task)
}

// cacheKey returns nil when caching is off or the key cannot be built
func (s *Service) cacheKey(ctx context.Context, task *tasks.Task, src string, desc app.Descriptor, log *logrus.Entry) *cache.Key {
	if s.cache == nil {
		return nil
	}
	s.progress(ctx, task, StageCache)

	key, err := cache.GenerateKey(src, desc)
	if err != nil {
		log.Warnf("Skipping cache: %v", err)
		return nil
	}
	return key
}

// lookup returns the cached droplet for key if it still exists in the store
func (s *Service) lookup(ctx context.Context, key *cache.Key, log *logrus.Entry) *cache.Entry {
	entry, err := s.cache.Get(ctx, key)
	if err != nil {
		s.metrics.RecordCache(false)
		return nil
	}

	ok, err := s.droplets.Exists(ctx, entry.DropletKey)
	if err != nil || !ok {
		log.Warnf("Cached droplet %s is gone, restaging", entry.DropletKey)
		_ = s.cache.Delete(ctx, key)
		s.metrics.RecordCache(false)
		return nil
	}

	s.metrics.RecordCache(true)
	return entry
}

func (s *Service) progress(ctx context.Context, task *tasks.Task, stage string) {
	task.Stage = stage
	task.UpdatedAt = time.Now().UTC()
	if err := s.tasks.Update(ctx, task); err != nil {
		s.log.WithField("task_id", task.ID).Warnf("Failed to record progress: %v", err)
	}
}

func (s *Service) complete(ctx context.Context, task *tasks.Task) (*tasks.Task, error) {
	task.State = tasks.StateDone
	task.Stage = StageComplete
	task.Error = ""
	task.UpdatedAt = time.Now().UTC()
	if err := s.tasks.Update(context.WithoutCancel(ctx), task); err != nil {
		return task, fmt.Errorf("failed to record task completion: %w", err)
	}
	return task, nil
}

func (s *Service) fail(ctx context.Context, task *tasks.Task, start time.Time, err error) (*tasks.Task, error) {
	s.metrics.RecordRun(outcome(err), time.Since(start))
	s.log.WithFields(logrus.Fields{"task_id": task.ID, "stage": task.Stage}).Errorf("Staging failed: %v", err)
	s.finish(ctx, task, err)
	return task, err
}

// finish marks task failed with err. The update outlives ctx so cancelled
// runs are still recorded.
func (s *Service) finish(ctx context.Context, task *tasks.Task, err error) {
	task.State = tasks.StateFailed
	task.Error = err.Error()
	task.UpdatedAt = time.Now().UTC()
	if uerr := s.tasks.Update(context.WithoutCancel(ctx), task); uerr != nil {
		s.log.WithField("task_id", task.ID).Warnf("Failed to record task failure: %v", uerr)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, staging.ErrStageFailed):
		return observability.OutcomeStageFailure
	case plugins.ValidationReason(err) != "":
		return observability.OutcomeValidationError
	default:
		return observability.OutcomeError
	}
}
