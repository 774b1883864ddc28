// Package cache implements the decision cache behind a single Store interface.
//
// Three backends are selected by configuration: an in-process memory cache,
// a shared Redis cache, and a no-op store for deployments with caching
// disabled. Entries are immutable once written; expiry is the backend's TTL.
package cache

import (
	"context"
	"fmt"
	"time"

	"pdp/internal/platform/config"
	platformredis "pdp/internal/platform/redis"
)

// Store is the contract every cache backend fulfills.
type Store interface {
	// Get returns the cached payload for key, reporting a miss via ok=false.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key, silently ignoring absent entries.
	Delete(ctx context.Context, key string) error
	// Health reports backend availability.
	Health(ctx context.Context) error
}

// New selects and constructs the configured backend.
func New(cfg config.Cache) (Store, error) {
	switch cfg.Store {
	case "memory":
		return NewMemory(cfg.Memory)
	case "redis":
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		if client == nil {
			return nil, fmt.Errorf("redis cache selected but PDP_REDIS_URL is empty")
		}
		return NewRedis(client.Client), nil
	case "none", "":
		return NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown cache store %q", cfg.Store)
	}
}
