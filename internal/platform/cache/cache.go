// Package cache provides the shared key-value store used for read-through
// caching. Values are opaque strings; callers own the encoding.
package cache

import (
	"context"
	"fmt"
	"time"

	"openfeedback/internal/platform/config"
)

type Cache interface {
	// Get reports found=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// New builds the cache selected by cfg.Driver.
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryCache(), nil
	case "redis":
		return NewRedisCache(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
