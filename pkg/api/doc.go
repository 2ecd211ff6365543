// Package api provides the HTTP API of the staging service.
//
// # Endpoints
//
//	POST /api/v1/stagings              submit a service.Request, 202 + task
//	GET  /api/v1/stagings?limit=N      most recent tasks, newest first
//	GET  /api/v1/stagings/{id}         one task
//	GET  /api/v1/stagings/{id}/droplet download URL for a finished task
//	GET  /api/v1/plugins               registered plugins
//	POST /api/v1/plans                 validate an app descriptor's plugin set
//
// Health probes (/health, /health/live, /health/ready) and /metrics are
// served by OpsHandler on the separate health port.
//
// # Errors
//
// Errors are JSON {"error": "...", "details": {...}}. A rejected plan
// returns 422 with details.reason set to one of plugin_not_found,
// unknown_plugin_type, missing_framework or duplicate_framework. A full
// staging queue returns 503 with Retry-After.
//
// # Usage
//
//	server := api.NewServer(svc,
//		api.WithLogger(log),
//		api.WithMetrics(metrics, registry),
//		api.WithHealth(checker),
//	)
//	apiSrv, opsSrv := server.HTTPServers(cfg.Server)
package api
