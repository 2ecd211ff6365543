// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so key
// usage is discoverable in one place.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/stager/pkg/contextkeys"
//	ctx = contextkeys.WithTaskID(ctx, task.ID)
//	id := contextkeys.GetTaskID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains request ID string (UUID)
	// Set by: api request middleware
	// Used by: request logging
	// Type: string
	RequestIDKey Key = "request_id"

	// TaskIDKey contains the staging task ID
	// Set by: service.Service before a run starts
	// Used by: staging.Orchestrator log fields and span attributes
	// Type: string
	TaskIDKey Key = "task_id"

	// TransitionObserverKey contains a func(staging.Transition)
	// Set by: staging.ObserveTransitions
	// Used by: staging.Orchestrator, alongside its WithObserver callback
	// Type: func(staging.Transition)
	TransitionObserverKey Key = "transition_observer"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithTaskID adds the staging task ID to the context
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID retrieves the staging task ID from context
func GetTaskID(ctx context.Context) string {
	if taskID, ok := ctx.Value(TaskIDKey).(string); ok {
		return taskID
	}
	return ""
}
