package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandops/internal/config"
)

var rules = config.RateLimit{
	Window:  time.Minute,
	Default: 3,
	Actions: map[string]int{"quest.activate": 2},
}

func exercise(t *testing.T, l Limiter, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "quest.activate", "alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}
	d, err := l.Allow(ctx, "quest.activate", "alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	d, err = l.Allow(ctx, "quest.activate", "bob")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "owners are limited independently")

	d, err = l.Allow(ctx, "mission.create", "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Limit)

	advance(time.Minute)
	d, err = l.Allow(ctx, "quest.activate", "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "next window starts fresh")
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 0, 30, 0, time.UTC)
	l := NewMemory(rules)
	l.Now = func() time.Time { return now }
	exercise(t, l, func(d time.Duration) { now = now.Add(d) })
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	now := time.Date(2024, 3, 15, 14, 0, 30, 0, time.UTC)
	l := NewRedis(client, rules)
	l.Now = func() time.Time { return now }
	exercise(t, l, func(d time.Duration) { now = now.Add(d) })

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

func TestRedisLimiterReportsBackendFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	_, err := NewRedis(client, rules).Allow(context.Background(), "quest.create", "alice")
	assert.Error(t, err)
}
