package cache

import (
	"time"

	"github.com/platinummonkey/stager/pkg/config"
)

// Entry records a droplet produced by an earlier staging run
type Entry struct {
	DropletKey string    `json:"droplet_key"`
	Sha256     string    `json:"sha256"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats represents cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	ItemCount int64   `json:"item_count"`
}

// Config holds cache configuration
type Config struct {
	Size int           // Max entries (default: config.DefaultCacheSize)
	TTL  time.Duration // TTL for cache entries (default: config.DefaultCacheTTL)
}

// DefaultConfig returns default cache configuration
func DefaultConfig() *Config {
	return &Config{
		Size: config.DefaultCacheSize,
		TTL:  config.DefaultCacheTTL,
	}
}
