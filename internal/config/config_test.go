package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, -15, cfg.Health.Deltas.Report)
	assert.Equal(t, -30, cfg.Health.Deltas.Block)
	assert.Equal(t, 3, cfg.Health.Deltas.NoReplyStreakCap)
	assert.Equal(t, 80, cfg.Health.Thresholds.Safe)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
accounts:
  default_max_daily_messages: 50
  default_min_interval_seconds: 90
health:
  deltas:
    report: -20
activation:
  min_delay_seconds: 60
  max_delay_seconds: 600
  start_hour: 8
  end_hour: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Accounts.DefaultMaxDailyMessages)
	assert.Equal(t, 90, cfg.Accounts.DefaultMinIntervalSeconds)
	assert.Equal(t, -20, cfg.Health.Deltas.Report)
	// untouched values keep defaults
	assert.Equal(t, -30, cfg.Health.Deltas.Block)
	assert.Equal(t, 8, cfg.Activation.StartHour)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("PORT", "7070")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://test", cfg.Database.URL)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateRejectsInvertedBounds(t *testing.T) {
	cfg := Default()
	cfg.Activation.MinDelaySeconds = 600
	cfg.Activation.MaxDelaySeconds = 60
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Activation.StartHour = 22
	cfg.Activation.EndHour = 9
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Accounts.DefaultMaxDailyMessages = 0
	assert.Error(t, cfg.Validate())
}
