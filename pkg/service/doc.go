// Package service runs staging requests end to end.
//
// Each request becomes a tasks.Task and runs in its own workspace:
//
//	preparing -> cache_lookup -> loading -> validating ->
//	staging_framework:<name> -> staging_feature:<name>... ->
//	packing -> uploading -> complete
//
// The task's Stage field follows this sequence as the run progresses, so a
// failed task names the step it stopped at. With a cache configured, a
// request whose source tree, plugin references and app settings match an
// earlier run reuses that run's droplet and skips the plugins entirely.
//
// Stage runs synchronously. Submit queues the request on a bounded worker
// pool and returns the pending task; a full queue fails fast with ErrBusy.
package service
