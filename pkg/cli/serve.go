package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/platinummonkey/stager/pkg/api"
	"github.com/platinummonkey/stager/pkg/async"
	"github.com/platinummonkey/stager/pkg/config"
	"github.com/platinummonkey/stager/pkg/janitor"
	"github.com/platinummonkey/stager/pkg/middleware"
	"github.com/platinummonkey/stager/pkg/observability"
	"github.com/platinummonkey/stager/pkg/spool"
	"github.com/prometheus/client_golang/prometheus"
)

func (c *Command) newServeCommand() *Command {
	return &Command{
		Name:        "serve",
		Description: "Run the staging API, spool watcher and janitor",
		Run:         c.runServe,
	}
}

func (c *Command) runServe(args []string) error {
	flags := c.newFlagSet("serve")
	spoolDir := flags.String("spool-dir", "", "Watch this directory for request files (overrides STAGER_SPOOL_DIR)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if *spoolDir != "" {
		cfg.Spool.Dir = *spoolDir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	log := observability.NewLogrus(cfg.Observability.LogLevel, os.Stdout)

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	s, err := buildStack(ctx, cfg, log, metrics)
	if err != nil {
		observability.ShutdownOTel(context.Background(), providers, logger)
		return err
	}

	checker := observability.NewHealthChecker(s.db, s.redis)
	checker.SetVersion(cfg.Observability.OTelServiceVersion)
	checker.AddCheck("droplets", func(ctx context.Context) error {
		_, err := s.droplets.Exists(ctx, "healthcheck")
		return err
	}, true)
	checker.AddCheck("staging_queue", func(ctx context.Context) error {
		if q := s.svc.Queued(); q >= cfg.Staging.QueueSize {
			return errors.New("staging queue is full")
		}
		return nil
	}, false)

	apiOpts := []api.Option{
		api.WithLogger(log),
		api.WithMetrics(metrics, registry),
		api.WithHealth(checker),
		api.WithPresignExpiry(cfg.Droplets.PresignExpiry),
	}
	if cfg.Server.SubmitRateLimit > 0 {
		apiOpts = append(apiOpts, api.WithSubmitLimit(submitLimiter(ctx, cfg, s)))
	}
	server := api.NewServer(s.svc, apiOpts...)
	apiSrv, opsSrv := server.HTTPServers(cfg.Server)

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.AddServer(apiSrv)
	shutdown.AddServer(opsSrv)

	// queued runs drain before the stores they write to close
	shutdown.RegisterShutdownFunc("staging", func(ctx context.Context) error {
		timeout := cfg.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		drainErr := s.svc.Shutdown(timeout)
		return errors.Join(drainErr, s.Close())
	})
	shutdown.RegisterShutdownFunc("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	if err := startSpool(ctx, cfg.Spool, s, shutdown); err != nil {
		shutdown.Shutdown()
		return err
	}
	if err := startJanitor(ctx, cfg, s, shutdown); err != nil {
		shutdown.Shutdown()
		return err
	}

	for _, srv := range []*http.Server{apiSrv, opsSrv} {
		go func() {
			defer observability.RecoverPanicWithCallback(logger, "server "+srv.Addr, cancel)
			logger.Infof("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Errorf("Server on %s failed", srv.Addr)
				cancel()
			}
		}()
	}

	return shutdown.WaitForShutdown(ctx)
}

func startSpool(ctx context.Context, cfg config.SpoolConfig, s *stack, shutdown *observability.ShutdownManager) error {
	if cfg.Dir == "" {
		return nil
	}

	w, err := spool.New(cfg.Dir, s.svc, s.log)
	if err != nil {
		return err
	}
	async.SafeGo(ctx, s.log, 0, "spool-watcher", w.Run)
	shutdown.RegisterShutdownFunc("spool", func(context.Context) error {
		return w.Close()
	})
	s.log.Infof("Watching spool directory %s", w.Dir())
	return nil
}

func startJanitor(ctx context.Context, cfg *config.Config, s *stack, shutdown *observability.ShutdownManager) error {
	if !cfg.Janitor.Enabled {
		return nil
	}

	j := janitor.New(s.tasks, cfg.Staging.WorkspaceRoot, cfg.Janitor, s.log)
	if err := j.Start(ctx); err != nil {
		return err
	}
	shutdown.RegisterShutdownFunc("janitor", func(ctx context.Context) error {
		select {
		case <-j.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return nil
}

// submitLimiter shares limits through redis when the task store uses it
func submitLimiter(ctx context.Context, cfg *config.Config, s *stack) (middleware.Limiter, *middleware.RateLimitConfig) {
	limit := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.Server.SubmitRateLimit,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.Server.SubmitBurst,
	}
	if s.redis != nil {
		return middleware.NewDistributedRateLimiter(s.redis, limit, cfg.Tasks.RedisPrefix+":ratelimit"), limit
	}

	limiter := middleware.NewRateLimiter(limit)
	limiter.StartCleanup(ctx)
	return limiter, limit
}
