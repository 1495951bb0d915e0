package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8989, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Cron.TickInterval)
	assert.Equal(t, time.Hour, cfg.Cron.DefaultTimeout)
	assert.Equal(t, 0, cfg.Cron.MaxConcurrent)
	assert.Equal(t, 50, cfg.Cron.LogDefaultLimit)
	assert.NotEmpty(t, cfg.Node.ID)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
cron:
  max_concurrent: 4
  log_default_limit: 10
node:
  id: file-node
`), 0644))

	t.Setenv("VPANEL_NODE_ID", "env-node")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Cron.MaxConcurrent)
	assert.Equal(t, 10, cfg.Cron.LogDefaultLimit)
	assert.Equal(t, "env-node", cfg.Node.ID, "env var wins over file")
	// Untouched sections keep their defaults.
	assert.Equal(t, time.Hour, cfg.Cron.DefaultTimeout)
}
