package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the variable pointing at an optional TOML config file
const FileEnv = "PLAYGROUND_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
	Storage   StorageConfig   `toml:"storage"`
	Assets    AssetsConfig    `toml:"assets"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string   `toml:"port" envconfig:"PORT"`
	Host            string   `toml:"host" envconfig:"HOST"`
	AllowOrigins    []string `toml:"allow_origins" envconfig:"ALLOW_ORIGINS"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr joins host and port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `toml:"level" envconfig:"LOG_LEVEL"`
	Development bool   `toml:"development" envconfig:"LOG_DEV"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `toml:"rps" envconfig:"RATE_LIMIT_RPS"`
	Burst             int  `toml:"burst" envconfig:"RATE_LIMIT_BURST"`
	Enabled           bool `toml:"enabled" envconfig:"RATE_LIMIT_ENABLED"`
}

// SandboxConfig bounds isolated contexts and workspaces.
type SandboxConfig struct {
	ExecTimeout    Duration `toml:"exec_timeout" envconfig:"SANDBOX_EXEC_TIMEOUT"`
	FrameInterval  Duration `toml:"frame_interval" envconfig:"SANDBOX_FRAME_INTERVAL"`
	RequestTimeout Duration `toml:"request_timeout" envconfig:"SANDBOX_REQUEST_TIMEOUT"`
	FlashDuration  Duration `toml:"flash_duration" envconfig:"SANDBOX_FLASH_DURATION"`
	MaxLogEntries  int      `toml:"max_log_entries" envconfig:"SANDBOX_MAX_LOG_ENTRIES"`
	Snapshots      bool     `toml:"snapshots" envconfig:"SANDBOX_SNAPSHOTS"`
}

// StorageConfig selects the snippet store.
type StorageConfig struct {
	Driver string `toml:"driver" envconfig:"STORAGE_DRIVER"` // "memory" or "sqlite"
	Path   string `toml:"path" envconfig:"STORAGE_PATH"`
}

// AssetsConfig configures the capability asset proxy.
type AssetsConfig struct {
	Proxy    bool     `toml:"proxy" envconfig:"ASSETS_PROXY"` // documents load capabilities through /assets
	Timeout  Duration `toml:"timeout" envconfig:"ASSETS_TIMEOUT"`
	Retries  int      `toml:"retries" envconfig:"ASSETS_RETRIES"`
	CacheTTL Duration `toml:"cache_ttl" envconfig:"ASSETS_CACHE_TTL"`
	MaxBytes int64    `toml:"max_bytes" envconfig:"ASSETS_MAX_BYTES"`
}

// Duration reads "5s"-style values from both TOML and the environment
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load layers configuration: defaults, then the TOML file named by
// PLAYGROUND_CONFIG (if any), then environment variables.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile is Load with an explicit file path. An empty path skips the
// file layer.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the server cannot start with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("sqlite storage needs a path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rate limit rps must be positive"))
	}
	if c.Sandbox.ExecTimeout.Duration <= 0 {
		errs = append(errs, errors.New("sandbox exec timeout must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowOrigins:    []string{"*"},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: SandboxConfig{
			ExecTimeout:    Duration{5 * time.Second},
			FrameInterval:  Duration{16 * time.Millisecond},
			RequestTimeout: Duration{5 * time.Second},
			FlashDuration:  Duration{600 * time.Millisecond},
			MaxLogEntries:  1000,
			Snapshots:      true,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Assets: AssetsConfig{
			Proxy:    true,
			Timeout:  Duration{10 * time.Second},
			Retries:  3,
			CacheTTL: Duration{time.Hour},
			MaxBytes: 8 << 20,
		},
	}
}
