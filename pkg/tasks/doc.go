// Package tasks records staging tasks and their progress.
//
// A task is created pending when a staging request is accepted, moves to
// running when the orchestrator starts, and ends done or failed. Stage holds
// the last orchestrator state reached so a failed task shows where it
// stopped.
//
// # Backends
//
//   - MemoryStore: process memory, the default for single-node use
//   - RedisStore: JSON values plus a sorted-set index, for shared queues
//   - SQLStore: postgres, or sqlite3 for micro deployments
//
// Backends are selected by STAGER_TASK_STORE. Wrap any of them with
// Instrument to count operations in Prometheus.
//
// # Retention
//
// DeleteBefore only removes done and failed tasks. Pending and running tasks
// survive any cutoff so the janitor never drops work in progress.
package tasks
