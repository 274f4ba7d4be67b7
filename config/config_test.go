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
	path := filepath.Join(t.TempDir(), "resale.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
redis:
  enabled: true
  addr: cache:6379
reconciliation:
  interval: 5m
  prune: true
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout, "unset fields keep defaults")
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Reconciliation.Interval)
	assert.True(t, cfg.Reconciliation.Prune)
	assert.Equal(t, 4, cfg.Reconciliation.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ""
reconciliation:
  enabled: true
  interval: 0s
log:
  format: xml
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path")
	assert.Contains(t, err.Error(), "reconciliation.interval")
	assert.Contains(t, err.Error(), "log.format")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}
