package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30*time.Second, cfg.Analytics.CacheTTL)
	assert.Equal(t, 30, cfg.RateLimit.Limit("quest.activate"))
	assert.Equal(t, 120, cfg.RateLimit.Limit("mission.create"))
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
server:
  addr: ":9000"
rate_limit:
  actions:
    quest.create: 10
log:
  format: text
`))
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, 10, cfg.RateLimit.Limit("quest.create"))
	assert.Equal(t, 5, cfg.RateLimit.Limit("feedback.create"))
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"driver":   "database: {driver: mysql}",
		"postgres": "database: {driver: postgres}",
		"window":   "rate_limit: {window: 0s}",
		"limit":    "rate_limit: {actions: {quest.activate: 0}}",
		"ttl":      "analytics: {cache_ttl: -1s}",
		"level":    "log: {level: loud}",
		"base":     "server: {base_path: v1}",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(Path(dir))
	assert.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
