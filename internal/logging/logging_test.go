// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreLogger(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestSetup_JSON(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	require.NoError(t, Setup("debug", "json", &buf))
	log.Debug().Str("model", "m1").Int("attempt", 0).Msg("attempt")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "m1", line["model"])
	assert.Equal(t, "attempt", line["message"])
	assert.Contains(t, line, "time")
}

func TestSetup_LevelFilters(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	require.NoError(t, Setup("warn", "json", &buf))
	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_Console(t *testing.T) {
	restoreLogger(t)
	var buf bytes.Buffer

	require.NoError(t, Setup("info", "console", &buf, WithNoColor()))
	log.Info().Str("path", "/api/health").Msg("request")

	assert.Contains(t, buf.String(), "request")
	assert.Contains(t, buf.String(), "path=/api/health")
}

func TestSetup_File(t *testing.T) {
	restoreLogger(t)
	path := filepath.Join(t.TempDir(), "mckenzie.log")

	require.NoError(t, Setup("info", "json", &bytes.Buffer{}, WithFile(path)))
	log.Info().Msg("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestSetup_Invalid(t *testing.T) {
	restoreLogger(t)
	assert.Error(t, Setup("loud", "json", &bytes.Buffer{}))
	assert.Error(t, Setup("info", "xml", &bytes.Buffer{}))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}
