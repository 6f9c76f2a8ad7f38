package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Addr())

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	// Sandbox config
	assert.Equal(t, 5*time.Second, cfg.Sandbox.ExecTimeout.Duration)
	assert.Equal(t, 600*time.Millisecond, cfg.Sandbox.FlashDuration.Duration)
	assert.Equal(t, "memory", cfg.Storage.Driver)

	require.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(FileEnv, "")

	cfg := LoadOrDefault()
	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                    "9000",
		"HOST":                    "127.0.0.1",
		"ALLOW_ORIGINS":           "http://a.test,http://b.test",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"RATE_LIMIT_RPS":          "500",
		"RATE_LIMIT_BURST":        "1000",
		"RATE_LIMIT_ENABLED":      "false",
		"SANDBOX_EXEC_TIMEOUT":    "250ms",
		"SANDBOX_REQUEST_TIMEOUT": "2s",
		"STORAGE_DRIVER":          "sqlite",
		"STORAGE_PATH":            "/tmp/snippets.db",
		"ASSETS_RETRIES":          "1",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.ExecTimeout.Duration)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.RequestTimeout.Duration)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "/tmp/snippets.db", cfg.Storage.Path)
	assert.Equal(t, 1, cfg.Assets.Retries)

	// untouched values keep their defaults
	assert.Equal(t, 1000, cfg.Sandbox.MaxLogEntries)
}

func TestFileLayerSitsBetweenDefaultsAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playground.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
port = "7000"
host = "localhost"

[sandbox]
exec_timeout = "1s"
max_log_entries = 50

[storage]
driver = "sqlite"
path = "snippets.db"
`), 0o600))

	t.Setenv("PORT", "7100")
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, time.Second, cfg.Sandbox.ExecTimeout.Duration)
	assert.Equal(t, 50, cfg.Sandbox.MaxLogEntries)
	assert.Equal(t, "snippets.db", cfg.Storage.Path)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.RequestTimeout.Duration, "file leaves other defaults alone")
}

func TestLoadFromEnvNamedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playground.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"warn\"\n"), 0o600))
	t.Setenv(FileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad toml", file: "[server\nport = 1"},
		{name: "bad duration", file: "[sandbox]\nexec_timeout = \"soon\"\n"},
		{name: "unknown driver", env: map[string]string{"STORAGE_DRIVER": "redis"}},
		{name: "sqlite without path", env: map[string]string{"STORAGE_DRIVER": "sqlite"}},
		{name: "bad env duration", env: map[string]string{"SANDBOX_EXEC_TIMEOUT": "forever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = filepath.Join(t.TempDir(), "bad.toml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o600))
			}
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
}
