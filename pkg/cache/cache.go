package cache

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache maps staging inputs to the droplet they produced. Entries expire
// after the configured TTL and the least recently used entry is evicted
// once the cache is full.
type Cache struct {
	config  *Config
	entries *lru.LRU[string, *Entry]
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache
func New(cfg *Config) *Cache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	size := cfg.Size
	if size < 1 {
		size = 1
	}

	return &Cache{
		config:  cfg,
		entries: lru.NewLRU[string, *Entry](size, nil, cfg.TTL),
	}
}

// Get returns the entry for key or ErrCacheMiss
func (c *Cache) Get(ctx context.Context, key *Key) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	entry, ok := c.entries.Get(key.String())
	if !ok {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}

	c.hits.Add(1)
	return entry, nil
}

// Set stores entry under key
func (c *Cache) Set(ctx context.Context, key *Key, entry *Entry) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry cannot be nil")
	}

	c.entries.Add(key.String(), entry)
	return nil
}

// Delete removes key
func (c *Cache) Delete(ctx context.Context, key *Key) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	c.entries.Remove(key.String())
	return nil
}

// Purge removes every entry. Hit and miss counters are kept.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	stats := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		ItemCount: int64(c.entries.Len()),
	}

	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}
