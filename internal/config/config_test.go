package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-services-api/internal/config"
)

const sampleYAML = `
server:
  addr: ":9000"
database:
  path: /tmp/hs.db
auth:
  issuer: yaml-issuer
  token_ttl: 2h
websocket:
  pong_wait: 40s
  ping_period: 20s
  allowed_origins: ["https://app.example.com"]
presence:
  shards: 8
dispatch:
  timeout: 1500ms
`

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, config.Parse([]byte(sampleYAML), cfg))

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/hs.db", cfg.Database.Path)
	assert.Equal(t, "yaml-issuer", cfg.Auth.Issuer)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 40*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, 8, cfg.Presence.Shards)
	assert.Equal(t, 1500*time.Millisecond, cfg.Dispatch.Timeout)

	// untouched keys keep their defaults
	assert.Equal(t, "home-services-clients", cfg.Auth.Audience)
	assert.Equal(t, 64, cfg.WebSocket.SendBuffer)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	err := config.Parse([]byte("server: [unterminated"), config.Default())
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("file and env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

		t.Setenv("HS_ADDR", ":7000")
		t.Setenv("JWT_SECRET", "env-secret")
		t.Setenv("HS_CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
		t.Setenv("HS_DISPATCH_TIMEOUT", "3s")
		t.Setenv("HS_REGISTRY_SHARDS", "4")

		cfg, err := config.Load(path, logger)
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Server.Addr)
		assert.Equal(t, "env-secret", cfg.Auth.Secret)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Cors.AllowedOrigins)
		assert.Equal(t, 3*time.Second, cfg.Dispatch.Timeout)
		assert.Equal(t, 4, cfg.Presence.Shards)
		assert.Equal(t, "/tmp/hs.db", cfg.Database.Path)
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := config.Load("", logger)
		require.NoError(t, err)
		assert.Equal(t, ":8008", cfg.Server.Addr)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), logger)
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("HS_TOKEN_TTL", "tomorrow")
		_, err := config.Load("", logger)
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("bad shard count", func(t *testing.T) {
		t.Setenv("HS_REGISTRY_SHARDS", "many")
		_, err := config.Load("", logger)
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Server.Addr = "" }},
		{"empty secret", func(c *config.Config) { c.Auth.Secret = "" }},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }},
		{"bad db log level", func(c *config.Config) { c.Database.LogLevel = "trace" }},
		{"ping after pong", func(c *config.Config) { c.WebSocket.PingPeriod = c.WebSocket.PongWait }},
		{"no shards", func(c *config.Config) { c.Presence.Shards = 0 }},
		{"zero dispatch timeout", func(c *config.Config) { c.Dispatch.Timeout = 0 }},
		{"zero token ttl", func(c *config.Config) { c.Auth.TokenTTL = 0 }},
		{"admin without password", func(c *config.Config) { c.Auth.AdminUsername = "root" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			require.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = ""
	cfg.Presence.Shards = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.addr")
	assert.Contains(t, err.Error(), "presence.shards")
}
