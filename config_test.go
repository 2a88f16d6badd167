package openiap

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
	path := filepath.Join(t.TempDir(), "openiap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "go", cfg.AgentName)
	assert.Equal(t, Version, cfg.AgentVersion)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.CallbackTimeout)
	assert.Equal(t, 100, cfg.MaxDrainPerCycle)
	assert.NotNil(t, cfg.Logger)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("File", func(t *testing.T) {
		path := writeConfig(t, `
url: grpc://app.openiap.io:443
agent_name: robot
poll_interval: 250ms
callback_timeout: 30s
default_timeout: 10s
max_drain_per_cycle: 5
`)
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "grpc://app.openiap.io:443", cfg.URL)
		assert.Equal(t, "robot", cfg.AgentName)
		assert.Equal(t, Version, cfg.AgentVersion)
		assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, 30*time.Second, cfg.CallbackTimeout)
		assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
		assert.Equal(t, 5, cfg.MaxDrainPerCycle)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv(EnvURL, "grpc://env:50051")
		t.Setenv(EnvPollInterval, "2s")
		t.Setenv(EnvLibraryPath, "/opt/openiap/libopeniap.so")
		path := writeConfig(t, "poll_interval: 250ms\n")

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "grpc://env:50051", cfg.URL)
		assert.Equal(t, 2*time.Second, cfg.PollInterval)
		assert.Equal(t, "/opt/openiap/libopeniap.so", cfg.LibraryPath)
	})

	t.Run("FileURLWins", func(t *testing.T) {
		t.Setenv(EnvURL, "grpc://env:50051")
		cfg, err := LoadConfig(writeConfig(t, "url: grpc://file:50051\n"))
		require.NoError(t, err)
		assert.Equal(t, "grpc://file:50051", cfg.URL)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "poll_interval: -1s\n"))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "poll_interval", verr.Field)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "url: [unterminated\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("BadPollInterval", func(t *testing.T) {
		t.Setenv(EnvPollInterval, "often")
		_, err := ConfigFromEnv()
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, EnvPollInterval, verr.Field)
	})

	t.Run("DisableAnalytics", func(t *testing.T) {
		t.Setenv(EnvDisableAnalytics, "true")
		cfg, err := LoadConfig(writeConfig(t, "analytics_key: phc_test\n"))
		require.NoError(t, err)
		assert.Empty(t, cfg.AnalyticsKey)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"PollInterval", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"CallbackTimeout", func(c *Config) { c.CallbackTimeout = -time.Second }, "callback_timeout"},
		{"DefaultTimeout", func(c *Config) { c.DefaultTimeout = -time.Second }, "default_timeout"},
		{"MaxDrain", func(c *Config) { c.MaxDrainPerCycle = -1 }, "max_drain_per_cycle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			var verr *ValidationError
			require.ErrorAs(t, cfg.Validate(), &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, int32(-1), seconds(0))
	assert.Equal(t, int32(-1), seconds(-time.Second))
	assert.Equal(t, int32(1), seconds(10*time.Millisecond))
	assert.Equal(t, int32(1), seconds(1999*time.Millisecond))
	assert.Equal(t, int32(90), seconds(90*time.Second))
}
