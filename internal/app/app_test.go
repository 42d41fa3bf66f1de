package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandops/internal/config"
	"commandops/internal/logging"
	"commandops/internal/migrate"
	"commandops/internal/ratelimit"
	"commandops/internal/validate"
)

func TestOpenInMemoryFallback(t *testing.T) {
	rt, err := Open(context.Background(), t.TempDir(), config.Default(), logging.Discard())
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Redis)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, rt.Limiter)
	latest, err := migrate.Latest()
	require.NoError(t, err)
	assert.Equal(t, latest, rt.SchemaVersion)

	m, err := rt.Engine.CreateMission(context.Background(), "alice", validate.MissionInput{Title: "Boot"})
	require.NoError(t, err)
	assert.Equal(t, "alice", m.OwnerID)
}

func TestOpenWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()

	rt, err := Open(context.Background(), t.TempDir(), cfg, logging.Discard())
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.Redis)
	assert.IsType(t, &ratelimit.RedisLimiter{}, rt.Limiter)

	d, err := rt.Limiter.Allow(context.Background(), "quest.create", "alice")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.NotEmpty(t, mr.Keys())
}

func TestOpenFailsWhenRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.Redis.Addr = addr
	_, err := Open(context.Background(), t.TempDir(), cfg, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect redis")
}
