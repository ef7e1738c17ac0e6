package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Server.Address)
	assert.Equal(t, 1000, cfg.Pipeline.HistoryCapacity)
	assert.False(t, cfg.Pipeline.StrictWorkflows)
	assert.Equal(t, time.Second, cfg.Pipeline.BackoffUnit)
	assert.Equal(t, 10, cfg.Pipeline.DefaultMaxStages)
	assert.Equal(t, 300*time.Second, cfg.Pipeline.DefaultTimeout)
	assert.Equal(t, 10*time.Second, cfg.Health.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Catalog.File)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	err := os.WriteFile(path, []byte(`
server:
  address: ":9090"
pipeline:
  history_capacity: 50
  strict_workflows: true
  backoff_unit: 250ms
catalog:
  file: "  catalog.yaml "
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 50, cfg.Pipeline.HistoryCapacity)
	assert.True(t, cfg.Pipeline.StrictWorkflows)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BackoffUnit)
	assert.Equal(t, "catalog.yaml", cfg.Catalog.File)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Health.Timeout)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIPELINE_PIPELINE_HISTORY_CAPACITY", "7")
	t.Setenv("PIPELINE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Pipeline.HistoryCapacity)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
