// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, task)
//	httputil.WriteAccepted(w, "/api/v1/stagings/"+task.ID, task)
//	httputil.WriteNotFoundError(w, "task not found")
//	httputil.WriteUnprocessable(w, err, map[string]string{"reason": "missing_framework"})
//
// Every error body has the shape {"error": "...", "details": {...}}.
//
// # Request Parsing
//
//	var req service.Request
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 50)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(log),
//		httputil.RecoveryMiddleware(log),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
