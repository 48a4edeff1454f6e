package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home-services-api/internal/config"
)

func TestParseOptions(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseOptions([]string{"--config", "c.yaml", "--addr", ":9999", "--db", "x.db", "--log-level", "debug"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "c.yaml", opts.configPath)

	cfg := config.Default()
	require.NoError(t, opts.apply(cfg))
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "x.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseOptions_Help(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseOptions([]string{"-h"}, &stderr)
	require.ErrorIs(t, err, errHelp)
	assert.Contains(t, stderr.String(), "--config")
}

func TestParseOptions_Rejects(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseOptions([]string{"--nope"}, &stderr)
	require.Error(t, err)

	_, err = parseOptions([]string{"extra"}, &stderr)
	require.Error(t, err)

	opts, err := parseOptions([]string{"--log-level", "shouty"}, &stderr)
	require.NoError(t, err)
	require.ErrorIs(t, opts.apply(config.Default()), config.ErrInvalidConfig)
}
