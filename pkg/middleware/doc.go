// Package middleware throttles staging submissions per client.
//
// Two limiters implement Limiter:
//
//	RateLimiter             in-memory token bucket, one process
//	DistributedRateLimiter  fixed window counter in redis, shared by every
//	                        stager using the same redis
//
// RateLimit wraps a handler, keys requests by client IP and answers 429
// with Retry-After once a client is over its limit. Limiter errors fail
// open.
//
//	limiter := middleware.NewRateLimiter(cfg)
//	limiter.StartCleanup(ctx)
//	submit = middleware.RateLimit(limiter, cfg, log)(submit)
package middleware
