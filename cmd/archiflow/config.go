package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/artpar/archiflow/internal/core/plugin"
	apimw "github.com/artpar/archiflow/internal/shell/api/middleware"
	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig    `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Log      LogConfig       `mapstructure:"log" yaml:"log"`
	Auth     AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Drawio   plugin.Settings `mapstructure:"drawio" yaml:"drawio"`
	NetBox   NetBoxConfig    `mapstructure:"netbox" yaml:"netbox"`
	Metrics  MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Events   EventsConfig    `mapstructure:"events" yaml:"events"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Mode determines how the caller's identity is obtained.
	// "header" - trust identity headers forwarded by the host (production)
	// "dev" - every request is the fixed dev user (local development)
	// "none" - no identity is extracted
	Mode string `mapstructure:"mode" yaml:"mode"`

	// RequireAuth rejects unauthenticated requests to the API and views with 401.
	RequireAuth bool `mapstructure:"require_auth" yaml:"require_auth"`

	// SharedSecret is an optional secret the host sends in X-Archiflow-Secret.
	SharedSecret string `mapstructure:"shared_secret" yaml:"shared_secret"`
}

// NetBoxConfig holds the NetBox site sync configuration.
// Sync is disabled when URL is empty.
type NetBoxConfig struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	Token        string        `mapstructure:"token" yaml:"token"`
	SyncInterval time.Duration `mapstructure:"sync_interval" yaml:"sync_interval"`
	PageSize     int           `mapstructure:"page_size" yaml:"page_size"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// EventsConfig holds the deployment event stream configuration.
type EventsConfig struct {
	BufferSize     int      `mapstructure:"buffer_size" yaml:"buffer_size"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
//
// ARCHIFLOW_DATA_DIR, when set, moves the default database into that
// directory. An explicit database.dsn still wins.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	dataDir := os.Getenv("ARCHIFLOW_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", filepath.Join(dataDir, "archiflow.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.mode", apimw.ModeHeader)
	v.SetDefault("auth.require_auth", false)
	v.SetDefault("auth.shared_secret", "")

	defaults := plugin.DefaultSettings()
	v.SetDefault("drawio.drawio_url", defaults.DrawioURL)
	v.SetDefault("drawio.websocket_url", defaults.WebsocketURL)
	v.SetDefault("drawio.enable_auto_save", defaults.EnableAutoSave)
	v.SetDefault("drawio.auto_save_interval", defaults.AutoSaveInterval.String())
	v.SetDefault("drawio.enable_realtime", defaults.EnableRealtime)
	v.SetDefault("drawio.enable_collaboration", defaults.EnableCollaboration)
	v.SetDefault("drawio.default_theme", defaults.DefaultTheme)

	v.SetDefault("netbox.url", "") // site sync disabled
	v.SetDefault("netbox.token", "")
	v.SetDefault("netbox.sync_interval", "5m")
	v.SetDefault("netbox.page_size", 100)
	v.SetDefault("netbox.timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("events.buffer_size", 64)
	v.SetDefault("events.allowed_origins", []string{})

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("ARCHIFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Auth.Mode {
	case apimw.ModeHeader, apimw.ModeDev, apimw.ModeNone:
	default:
		return fmt.Errorf("auth.mode must be one of header, dev, none; got %q", c.Auth.Mode)
	}

	if err := c.Drawio.Validate(); err != nil {
		return fmt.Errorf("drawio: %w", err)
	}

	if c.NetBox.URL != "" && c.NetBox.SyncInterval <= 0 {
		return fmt.Errorf("netbox.sync_interval must be positive, got %s", c.NetBox.SyncInterval)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

// Redacted returns a copy safe to print, with secrets masked.
func (c Config) Redacted() Config {
	if c.Auth.SharedSecret != "" {
		c.Auth.SharedSecret = "********"
	}
	if c.NetBox.Token != "" {
		c.NetBox.Token = "********"
	}
	return c
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "archiflow")
}
