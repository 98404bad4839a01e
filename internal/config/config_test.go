package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
secrets:
  cookie: "s3cret"
rate_limit:
  per_ip:
    rate: 50
    window_seconds: 10
  exceptions:
    - 10.0.0.0/8
    - 192.0.2.7
site:
  perf_headers: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "s3cret", cfg.Secrets.Cookie)
	assert.Equal(t, 50, cfg.RateLimit.PerIP.Rate)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.PerIP.Limit().Window)
	// Unset sections keep their defaults.
	assert.Equal(t, 400, cfg.RateLimit.PerUser.Rate)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Len(t, cfg.RateLimit.Exceptions, 2)
	assert.True(t, cfg.Site.PerfHeaders)
	assert.False(t, cfg.Site.LoginRequired)
}

func TestLoadRequiresCookieSecret(t *testing.T) {
	path := writeConfig(t, "listen_addr: \":9090\"\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRACKER_COOKIE_SECRET", "from-env")
	t.Setenv("TRACKER_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("TRACKER_NATS_URL", "nats://broker:4222")

	path := writeConfig(t, "secrets:\n  cookie: \"file-secret\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Secrets.Cookie)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
}

func TestStoreReloadKeepsOldOnError(t *testing.T) {
	path := writeConfig(t, "secrets:\n  cookie: \"one\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	store := NewStore(path, cfg)
	require.Equal(t, "one", store.Current().Secrets.Cookie)

	// Broken yaml must not disturb the active snapshot.
	require.NoError(t, os.WriteFile(path, []byte(":::"), 0o644))
	require.Error(t, store.Reload())
	assert.Equal(t, "one", store.Current().Secrets.Cookie)

	require.NoError(t, os.WriteFile(path, []byte("secrets:\n  cookie: \"two\"\n"), 0o644))
	require.NoError(t, store.Reload())
	assert.Equal(t, "two", store.Current().Secrets.Cookie)
}

func TestSettingsSnapshot(t *testing.T) {
	path := writeConfig(t, "secrets:\n  cookie: \"x\"\nsite:\n  login_required: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	store := NewStore(path, cfg)
	set := store.Settings()
	assert.True(t, set.LoginRequired)
	assert.False(t, set.PerfHeaders)
}
