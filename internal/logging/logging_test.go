package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-services-api/internal/config"
	"home-services-api/internal/logging"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	componentLogger := logging.Component(logger, "PresenceHub")
	componentLogger.Warn().Str("identity", "User:1").Msg("visible")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "home-services-api", entry["service"])
	assert.Equal(t, "PresenceHub", entry["component"])
	assert.Equal(t, "User:1", entry["identity"])
}

func TestNewConsoleAndFallbackLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(config.LogConfig{Level: "nonsense", Format: "console"}, &buf)

	logger.Debug().Msg("dropped")
	logger.Info().Msg("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
