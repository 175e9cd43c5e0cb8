package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache is a per-process TTL cache. Expired entries are dropped on
// read and by the janitor.
type MemoryCache struct {
	store sync.Map // map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	val, ok := c.store.Load(key)
	if !ok {
		return "", false, nil
	}

	entry := val.(memoryEntry)
	if !c.now().Before(entry.expiresAt) {
		c.store.CompareAndDelete(key, entry)
		return "", false, nil
	}

	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.store.Store(key, memoryEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.store.Delete(key)
	return nil
}

func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

// Sweep removes expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	now := c.now()
	removed := 0
	c.store.Range(func(key, value any) bool {
		if !now.Before(value.(memoryEntry).expiresAt) {
			if c.store.CompareAndDelete(key, value) {
				removed++
			}
		}
		return true
	})
	return removed
}

// StartJanitor sweeps every interval until ctx is done.
func (c *MemoryCache) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}
