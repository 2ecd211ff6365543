package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/stager/pkg/cache"
	"github.com/platinummonkey/stager/pkg/config"
	"github.com/platinummonkey/stager/pkg/containers"
	"github.com/platinummonkey/stager/pkg/droplet"
	"github.com/platinummonkey/stager/pkg/observability"
	"github.com/platinummonkey/stager/pkg/plugins"
	"github.com/platinummonkey/stager/pkg/plugins/builtin"
	"github.com/platinummonkey/stager/pkg/service"
	"github.com/platinummonkey/stager/pkg/staging"
	"github.com/platinummonkey/stager/pkg/tasks"
	"github.com/sirupsen/logrus"
)

// stack is the staging pipeline shared by the stage and serve commands
type stack struct {
	cfg     *config.Config
	log     *logrus.Logger
	metrics *observability.Metrics
	// registry holds the ambient plugins; references holds discovered
	// plugins that are only staged when an application names them
	registry   *plugins.Registry
	references *plugins.Registry
	orch       *staging.Orchestrator
	tasks      tasks.Store
	droplets   droplet.Store
	svc        *service.Service

	// set for the backends health checks know how to probe
	db    *sql.DB
	redis *redis.Client

	closers []func() error
}

// buildStack opens the stores, builds the plugin registry and starts the
// staging service. Close releases everything it opened.
func buildStack(ctx context.Context, cfg *config.Config, log *logrus.Logger, metrics *observability.Metrics) (*stack, error) {
	s := &stack{cfg: cfg, log: log, metrics: metrics}

	if err := s.buildRegistry(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openTaskStore(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openDropletStore(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.orch = s.newOrchestrator(
		staging.WithMetrics(metrics),
		staging.WithTracer(observability.Tracer()),
	)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithConfig(service.ConfigFrom(cfg.Staging)),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, service.WithCache(cache.New(&cache.Config{Size: cfg.Cache.Size, TTL: cfg.Cache.TTL})))
	}
	s.svc = service.New(s.orch, s.tasks, s.droplets, opts...)

	return s, nil
}

// newOrchestrator builds an orchestrator over the ambient registry that
// also resolves references against the discovered plugins
func (s *stack) newOrchestrator(opts ...staging.Option) *staging.Orchestrator {
	opts = append([]staging.Option{
		staging.WithLogger(s.log),
		staging.WithReferences(s.references),
		staging.WithAmbientDiscovery(s.cfg.Staging.AmbientDiscovery),
	}, opts...)
	return staging.NewOrchestrator(s.registry, opts...)
}

// buildRegistry registers the builtin plugins as the ambient set, then any
// container plugins found in the plugin directories as references.
// Discovered plugins shadow builtins of the same name when referenced, and
// discovered frameworks become selectable through the builtin detector.
func (s *stack) buildRegistry(ctx context.Context) error {
	s.registry = plugins.NewRegistry()
	s.references = plugins.NewRegistry()
	if err := builtin.RegisterDefaults(s.registry); err != nil {
		return fmt.Errorf("failed to register builtin plugins: %w", err)
	}

	if s.cfg.Containers.Enabled {
		if err := s.discover(ctx); err != nil {
			return err
		}
	}

	if err := s.attachFrameworks(); err != nil {
		return err
	}
	return s.checkAmbient()
}

// discover registers container plugins from the plugin directories into
// the reference-only registry
func (s *stack) discover(ctx context.Context) error {

	docker, err := containers.NewDockerClient(ctx)
	if err != nil {
		s.log.Warnf("Container plugins disabled: %v", err)
		return nil
	}
	s.closers = append(s.closers, docker.Close)

	dirs := s.cfg.Staging.PluginDirs
	if len(dirs) == 0 {
		dirs = plugins.DefaultPluginDirectories()
	}

	factory := containers.NewFactory(docker, containers.Options{
		MemoryLimit: s.cfg.Containers.MemoryLimit,
		CPULimit:    s.cfg.Containers.CPULimit,
		Timeout:     s.cfg.Containers.Timeout,
		PullTimeout: s.cfg.Containers.PullTimeout,
		Logger:      s.log,
	})
	n, err := plugins.NewDiscoverer(dirs, s.log).RegisterDiscovered(ctx, s.references, factory)
	if err != nil {
		return fmt.Errorf("plugin discovery failed: %w", err)
	}
	s.log.Infof("Registered %d container plugins", n)
	return nil
}

// attachFrameworks hands every discovered framework plugin to the builtin
// detector, so an application declaring that framework is staged by it
// without naming the plugin
func (s *stack) attachFrameworks() error {
	frameworks := s.references.ListByType(plugins.PluginTypeFramework)
	if len(frameworks) == 0 {
		return nil
	}

	p, _ := s.registry.Lookup(builtin.DetectorName)
	detector, ok := p.(*builtin.Detector)
	if !ok {
		return fmt.Errorf("builtin plugin %q is not a framework detector", builtin.DetectorName)
	}
	for _, fw := range frameworks {
		if err := detector.Add(fw); err != nil {
			return fmt.Errorf("failed to attach framework plugin: %w", err)
		}
		s.log.Infof("Framework %s is staged by its discovered plugin", fw.Name())
	}
	return nil
}

// checkAmbient fails startup when the ambient set alone could never pass
// validation
func (s *stack) checkAmbient() error {
	if !s.cfg.Staging.AmbientDiscovery {
		return nil
	}
	frameworks := s.registry.ListByType(plugins.PluginTypeFramework)
	if len(frameworks) < 2 {
		return nil
	}
	names := make([]string, len(frameworks))
	for i, p := range frameworks {
		names[i] = p.Name()
	}
	return fmt.Errorf("ambient plugins cannot form a valid set: %w",
		&plugins.DuplicateFrameworkPluginError{Plugins: names})
}

func (s *stack) openTaskStore(ctx context.Context) error {
	cfg := s.cfg.Tasks

	var store tasks.Store
	switch cfg.StoreType {
	case "memory":
		store = tasks.NewMemoryStore()
	case "redis":
		rs, err := tasks.OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return err
		}
		s.redis = rs.Client()
		store = rs
	case "postgres":
		ps, err := tasks.OpenSQL(ctx, tasks.DriverPostgres, cfg.PostgresURL)
		if err != nil {
			return err
		}
		s.db = ps.DB()
		store = ps
	case "sqlite":
		ss, err := tasks.OpenSQL(ctx, tasks.DriverSQLite, cfg.SQLitePath)
		if err != nil {
			return err
		}
		s.db = ss.DB()
		store = ss
	default:
		return fmt.Errorf("invalid task store type: %s", cfg.StoreType)
	}

	s.tasks = tasks.Instrument(store, cfg.StoreType, s.metrics)
	s.closers = append(s.closers, store.Close)
	s.log.Infof("Task store: %s", cfg.StoreType)
	return nil
}

func (s *stack) openDropletStore(ctx context.Context) error {
	cfg := s.cfg.Droplets

	switch cfg.StoreType {
	case "filesystem":
		if err := os.MkdirAll(cfg.Root, 0755); err != nil {
			return fmt.Errorf("failed to create droplet root: %w", err)
		}
		fs, err := droplet.NewFileStore(cfg.Root)
		if err != nil {
			return err
		}
		s.droplets = fs
	case "s3":
		s3, err := droplet.NewS3Store(ctx, droplet.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return err
		}
		s.droplets = s3
	default:
		return fmt.Errorf("invalid droplet store type: %s", cfg.StoreType)
	}

	s.log.Infof("Droplet store: %s", cfg.StoreType)
	return nil
}

// Close releases stores and clients in reverse order of opening
func (s *stack) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}
