package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 1000, cfg.Sync.PageSize)
	require.Equal(t, 10, cfg.Sync.HourlyLookbackDays)
	require.Equal(t, 7, cfg.Sync.DefaultDays)
	require.Equal(t, "30 2 * * *", cfg.Scheduler.AggregateSpec)
	require.Equal(t, 30*time.Second, cfg.APITimeout())
	require.Equal(t, 30*24*time.Hour, cfg.Retention())
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := []byte(`
server:
  port: 9090
db:
  dsn: postgres://localhost/searchsync
sync:
  page_size: 250
  requests_per_second: 0.5
scheduler:
  enabled: true
  aggregate_days_back: 2
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "postgres://localhost/searchsync", cfg.DB.DSN)
	require.Equal(t, 250, cfg.Sync.PageSize)
	require.Equal(t, 0.5, cfg.Sync.RequestsPerSecond)
	require.True(t, cfg.Scheduler.Enabled)
	require.Equal(t, 2, cfg.Scheduler.AggregateDaysBack)
	// untouched sections keep defaults
	require.Equal(t, 10, cfg.Sync.HourlyLookbackDays)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Sync.PageSize = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Auth.Enabled = true
	bad.Auth.APIKey = ""
	require.Error(t, bad.Validate())

	bad.Auth.APIKey = "secret"
	require.NoError(t, bad.Validate())
}
