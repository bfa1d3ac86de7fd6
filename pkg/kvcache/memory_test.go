package kvcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "webhook:raw:abc", []byte(`{"a":1}`), 24*time.Hour))
	got, err := m.Get(ctx, "webhook:raw:abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	now = now.Add(24 * time.Hour)
	_, err = m.Get(ctx, "webhook:raw:abc")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestAcquire_IsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	l1, err := Acquire(ctx, m, "lock:send:m1", "worker-a", 2*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, l1)

	l2, err := Acquire(ctx, m, "lock:send:m1", "worker-b", 2*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, l2)

	// a foreign token never frees the lock
	require.NoError(t, m.Release(ctx, "lock:send:m1", "worker-b"))
	_, err = m.Get(ctx, "lock:send:m1")
	require.NoError(t, err)

	require.NoError(t, l1.Release(ctx))
	l3, err := Acquire(ctx, m, "lock:send:m1", "worker-b", 2*time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, l3)
}

func TestLock_Refresh(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	l, err := Acquire(ctx, m, "lock:campaign:scheduler", "node-1", time.Minute)
	require.NoError(t, err)
	ok, err := l.Refresh(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Set(ctx, "lock:campaign:scheduler", []byte("node-2"), time.Minute))
	ok, err = l.Refresh(ctx, 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
