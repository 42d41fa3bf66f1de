package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandops/internal/domain"
)

var snapshot = domain.Analytics{
	OperationalLoad:  2.0 / 3.0,
	ActiveCount:      2,
	WeeklyMomentum:   4,
	SuccessRate:      67,
	EstimateAccuracy: 80,
	ComputedAt:       time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC),
}

func roundTrip(t *testing.T, c Snapshots, expire func()) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "alice", snapshot))
	got, ok, err := c.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot.ActiveCount, got.ActiveCount)
	assert.InDelta(t, snapshot.OperationalLoad, got.OperationalLoad, 1e-9)
	assert.True(t, snapshot.ComputedAt.Equal(got.ComputedAt))

	_, ok, _ = c.Get(ctx, "bob")
	assert.False(t, ok)

	require.NoError(t, c.Invalidate(ctx, "alice"))
	_, ok, _ = c.Get(ctx, "alice")
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "alice", snapshot))
	expire()
	_, ok, err = c.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "expired snapshot must not be served")
}

func TestMemorySnapshots(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	c := NewMemory(30 * time.Second)
	c.Now = func() time.Time { return now }
	roundTrip(t, c, func() { now = now.Add(31 * time.Second) })
}

func TestRedisSnapshots(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	roundTrip(t, NewRedis(client, 30*time.Second), func() { mr.FastForward(31 * time.Second) })
}

func TestZeroTTLDisablesStorage(t *testing.T) {
	c := NewMemory(0)
	require.NoError(t, c.Put(context.Background(), "alice", snapshot))
	_, ok, _ := c.Get(context.Background(), "alice")
	assert.False(t, ok)
}
