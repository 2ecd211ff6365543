// Package observability provides structured logging, Prometheus metrics,
// health probes, graceful shutdown and OpenTelemetry setup for the stager
// process.
//
// # Structured Logging
//
// The server logs JSON through Logger; library packages take the logrus
// logger returned by NewLogrus so both share a level:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	log := observability.NewLogrus(observability.InfoLevel, os.Stdout)
//	logger.WithField("task_id", id).Info("Staging task queued")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordRun(observability.OutcomeSuccess, time.Since(start))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// All Record helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	checker.AddCheck("droplets", store.Ping, true)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "stager",
//		Insecure:    true,
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Staging spans are created from Tracer().
//
// # Related Packages
//
//   - pkg/config: observability configuration
//   - pkg/api: HTTP middleware wiring
package observability
