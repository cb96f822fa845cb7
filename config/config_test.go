package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
mode:
  dry_run: true
trading:
  min_edge: 0.02
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Mode.DryRun)
	assert.InDelta(t, 0.02, cfg.Trading.MinEdge, 1e-9)

	// Unset fields get defaults.
	assert.InDelta(t, 0.05, cfg.Trading.MinSpread, 1e-9)
	assert.InDelta(t, 200.0, cfg.Risk.MaxPositionPerMarket, 1e-9)
	assert.Equal(t, 3, cfg.Execution.MaxRetries)
	assert.Equal(t, 256, cfg.Execution.QueueCapacity)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "https://clob.polymarket.com", cfg.API.CLOBBase)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "trading: [not a map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DRY_RUN", "false")

	path := writeConfig(t, `
mode:
  dry_run: true
log:
  level: info
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Mode.DryRun)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay())
	assert.Equal(t, time.Minute, cfg.OrderTimeout())
	assert.Equal(t, 30*time.Second, cfg.MonitorInterval())
}
