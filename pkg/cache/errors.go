package cache

import "errors"

var (
	// ErrCacheMiss is returned when a key has no live entry
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidCacheKey is returned for nil or incomplete keys
	ErrInvalidCacheKey = errors.New("invalid cache key")
)
