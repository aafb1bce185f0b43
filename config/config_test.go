// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults, file values, environment overrides and round-trip save

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, DefaultDispatchTimeout, time.Duration(cfg.DispatchTimeout))
	assert.Equal(t, DefaultTickInterval, time.Duration(cfg.TickInterval))
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.NotEmpty(t, cfg.DBPath)
	assert.False(t, cfg.MailConfigured())
	assert.False(t, cfg.SMSConfigured())
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "db_path": "/tmp/from-file.db",
  "tick_interval": "5m",
  "dispatch_timeout": "10s",
  "workers": 2,
  "sms_gateway_url": "http://sms.local/send"
}`), 0600))

	t.Setenv("RELANCE_WORKERS", "8")
	t.Setenv("RELANCE_DRY_RUN", "true")
	t.Setenv("RELANCE_MAIL_FROM", "recouvrement@example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.TickInterval))
	assert.Equal(t, 10*time.Second, time.Duration(cfg.DispatchTimeout))
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "recouvrement@example.com", cfg.MailFrom)
	assert.True(t, cfg.SMSConfigured())
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tick_interval": "soon"}`), 0600))
	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("RELANCE_DISPATCH_TIMEOUT", "forever")
	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.CalendarID = "primary"
	cfg.GoogleClientID = "id"
	cfg.GoogleClientSecret = "secret"
	cfg.TickInterval = Duration(time.Hour)
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, time.Duration(loaded.TickInterval))
	assert.True(t, loaded.CalendarConfigured())
}
