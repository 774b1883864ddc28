package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"pdp/internal/platform/config"
)

// Memory is an in-process cache backend. Expiry is lazy: expired entries are
// rejected at read time by ristretto, not swept in the background.
type Memory struct {
	cache *ristretto.Cache
}

// NewMemory constructs the in-memory backend with the configured sizing.
func NewMemory(cfg config.MemoryCache) (*Memory, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &Memory{cache: cache}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	payload, ok := value.([]byte)
	if !ok {
		return nil, false, nil
	}
	return payload, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.cache.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.cache.Del(key)
	return nil
}

func (m *Memory) Health(context.Context) error {
	return nil
}

// Wait blocks until pending writes are applied. Only used by tests; ristretto
// applies sets asynchronously.
func (m *Memory) Wait() {
	m.cache.Wait()
}
