package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdp/internal/platform/config"
)

func newMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := NewMemory(config.MemoryCache{NumCounters: 1000, MaxCost: 1 << 20})
	require.NoError(t, err)
	return m
}

func TestKey_DistinctPerUser(t *testing.T) {
	k1, err := Key("allowed", map[string]any{"user": "u1", "action": "read"})
	require.NoError(t, err)
	k2, err := Key("allowed", map[string]any{"user": "u2", "action": "read"})
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2, "different principals must never share a cache entry")
}

func TestKey_DistinctPerShape(t *testing.T) {
	payload := map[string]any{"user": "u1"}
	k1, err := Key("allowed", payload)
	require.NoError(t, err)
	k2, err := Key("user_permissions", payload)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestKey_Deterministic(t *testing.T) {
	payload := map[string]any{"user": "u1", "action": "read", "resource": "doc"}
	k1, err := Key("allowed", payload)
	require.NoError(t, err)
	k2, err := Key("allowed", payload)
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Contains(t, k1, "pdp:allowed:")
}

func TestMemory_SetGetDelete(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte(`{"allow":true}`), time.Minute))
	m.Wait()

	value, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"allow":true}`), value)

	require.NoError(t, m.Delete(ctx, "k"))
	m.Wait()
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_TTLExpiry(t *testing.T) {
	m := newMemory(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 50*time.Millisecond))
	m.Wait()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)

	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry must be rejected after TTL")
}

func TestNull_AlwaysMisses(t *testing.T) {
	n := NewNull()
	ctx := context.Background()

	require.NoError(t, n.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, err := n.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, n.Health(ctx))
}

func TestNew_SelectsBackend(t *testing.T) {
	store, err := New(config.Cache{Store: "none"})
	require.NoError(t, err)
	assert.IsType(t, &Null{}, store)

	store, err = New(config.Cache{Store: "memory", Memory: config.MemoryCache{NumCounters: 100, MaxCost: 1 << 16}})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	_, err = New(config.Cache{Store: "bogus"})
	assert.Error(t, err)

	_, err = New(config.Cache{Store: "redis"})
	assert.Error(t, err, "redis store without URL must fail")
}
