package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commandops/internal/config"
	"commandops/internal/db"
	"commandops/internal/engine/auth"
	"commandops/internal/migrate"
	"commandops/internal/repo"
)

func newService(t *testing.T) auth.Service {
	t.Helper()
	conn, err := db.Open(config.Database{Driver: "sqlite"}, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(conn)
	require.NoError(t, err)
	return auth.Service{Repo: repo.Repo{DB: conn}, JWTSecret: "s3cret"}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newService(t)
	token, err := svc.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	p, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.OwnerID)
	assert.Equal(t, "jwt", p.Source)

	other := svc
	other.JWTSecret = "different"
	_, err = other.ParseToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := newService(t)
	issued := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return issued }
	token, err := svc.IssueToken("alice", time.Minute)
	require.NoError(t, err)

	svc.Now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestMissingSecret(t *testing.T) {
	svc := newService(t)
	svc.JWTSecret = ""
	_, err := svc.IssueToken("alice", 0)
	assert.ErrorIs(t, err, auth.ErrNoSecret)
}

func TestAPIKeyLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	key, secret, err := svc.CreateAPIKey(ctx, "alice", " laptop ")
	require.NoError(t, err)
	assert.Equal(t, "laptop", key.Name)
	assert.NotContains(t, key.KeyHash, secret)

	p, err := svc.AuthenticateAPIKey(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.OwnerID)

	keys, err := svc.Repo.ListAPIKeys(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	require.NoError(t, svc.Repo.DeleteAPIKey(ctx, key.ID))
	_, err = svc.AuthenticateAPIKey(ctx, secret)
	assert.ErrorIs(t, err, auth.ErrUnknownAPIKey)
	assert.ErrorIs(t, svc.Repo.DeleteAPIKey(ctx, key.ID), repo.ErrNotFound)
}
