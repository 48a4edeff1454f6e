// Package config loads the service configuration in three stages:
// built-in defaults, an optional YAML file, then environment overrides.
// The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path     string `yaml:"path"`
	LogLevel string `yaml:"log_level"` // silent, error, warn or info
}

type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TokenTTL time.Duration `yaml:"token_ttl"`
	// The admin account is created at startup when both are set.
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type WebSocketConfig struct {
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type PresenceConfig struct {
	Shards          int           `yaml:"shards"`
	LastSeenTTL     time.Duration `yaml:"last_seen_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type DispatchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type CorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config is the validated configuration used throughout the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Presence  PresenceConfig  `yaml:"presence"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Cors      CorsConfig      `yaml:"cors"`
}

// Default returns the configuration used for anything the file and the
// environment leave unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8008",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:     "home-services.db",
			LogLevel: "warn",
		},
		Auth: AuthConfig{
			Secret:   "development-insecure-secret-change-me",
			Issuer:   "home-services-api",
			Audience: "home-services-clients",
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			WriteWait:      5 * time.Second,
			PongWait:       60 * time.Second,
			PingPeriod:     30 * time.Second,
			MaxMessageSize: 64 << 10,
			SendBuffer:     64,
		},
		Presence: PresenceConfig{
			Shards:          32,
			LastSeenTTL:     24 * time.Hour,
			JanitorInterval: 10 * time.Minute,
		},
		Dispatch: DispatchConfig{
			Timeout: 5 * time.Second,
		},
		Cors: CorsConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and the environment.
func Load(path string, logger zerolog.Logger) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
		logger.Debug().Str("path", path).Msg("Loaded config file")
	}
	if err := ApplyEnv(cfg, logger); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse overlays YAML data onto cfg. Keys absent from the document keep
// their current values.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal yaml config: %w", err)
	}
	return nil
}

// ApplyEnv applies HS_* overrides plus the JWT_* variables.
func ApplyEnv(cfg *Config, logger zerolog.Logger) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			logger.Debug().Str("key", key).Str("source", "env").Msg("Overriding config value")
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		logger.Debug().Str("key", key).Str("source", "env").Msg("Overriding config value")
		*dst = d
		return nil
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			logger.Debug().Str("key", key).Str("source", "env").Msg("Overriding config value")
			*dst = splitList(v)
		}
	}

	str("HS_ADDR", &cfg.Server.Addr)
	str("HS_DB_PATH", &cfg.Database.Path)
	str("HS_DB_LOG_LEVEL", &cfg.Database.LogLevel)
	str("HS_LOG_LEVEL", &cfg.Log.Level)
	str("HS_LOG_FORMAT", &cfg.Log.Format)
	str("JWT_SECRET", &cfg.Auth.Secret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_AUDIENCE", &cfg.Auth.Audience)
	str("HS_ADMIN_USERNAME", &cfg.Auth.AdminUsername)
	str("HS_ADMIN_PASSWORD", &cfg.Auth.AdminPassword)
	list("HS_CORS_ALLOWED_ORIGINS", &cfg.Cors.AllowedOrigins)
	list("HS_WS_ALLOWED_ORIGINS", &cfg.WebSocket.AllowedOrigins)

	if v := os.Getenv("HS_REGISTRY_SHARDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: HS_REGISTRY_SHARDS: %v", ErrInvalidConfig, err)
		}
		cfg.Presence.Shards = n
	}

	return errors.Join(
		dur("HS_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout),
		dur("HS_TOKEN_TTL", &cfg.Auth.TokenTTL),
		dur("HS_DISPATCH_TIMEOUT", &cfg.Dispatch.Timeout),
		dur("HS_LAST_SEEN_TTL", &cfg.Presence.LastSeenTTL),
	)
}

// Validate reports every problem found, not only the first.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Addr == "" {
		fail("server.addr is empty")
	}
	if c.Database.Path == "" {
		fail("database.path is empty")
	}
	switch c.Database.LogLevel {
	case "silent", "error", "warn", "info":
	default:
		fail("database.log_level %q is not one of silent, error, warn, info", c.Database.LogLevel)
	}
	if c.Auth.Secret == "" {
		fail("auth.secret is empty")
	}
	if c.Auth.Issuer == "" || c.Auth.Audience == "" {
		fail("auth.issuer and auth.audience are required")
	}
	if (c.Auth.AdminUsername == "") != (c.Auth.AdminPassword == "") {
		fail("auth.admin_username and auth.admin_password must be set together")
	}
	if c.Auth.TokenTTL <= 0 {
		fail("auth.token_ttl must be positive")
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		fail("log.level %q: %v", c.Log.Level, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		fail("log.format %q is not json or console", c.Log.Format)
	}
	if c.WebSocket.PongWait <= 0 || c.WebSocket.WriteWait <= 0 {
		fail("websocket waits must be positive")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		fail("websocket.ping_period must be shorter than websocket.pong_wait")
	}
	if c.WebSocket.MaxMessageSize <= 0 || c.WebSocket.SendBuffer <= 0 {
		fail("websocket.max_message_size and websocket.send_buffer must be positive")
	}
	if c.Presence.Shards <= 0 {
		fail("presence.shards must be positive")
	}
	if c.Presence.LastSeenTTL < 0 || c.Presence.JanitorInterval <= 0 {
		fail("presence.last_seen_ttl must not be negative and presence.janitor_interval must be positive")
	}
	if c.Dispatch.Timeout <= 0 {
		fail("dispatch.timeout must be positive")
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
