// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears overriding environment variables.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, key := range []string{"GEMINI_API_KEY", "MCKENZIE_MODELS", "MCKENZIE_LOG_LEVEL", "MCKENZIE_DATA_DIR", "MCKENZIE_ADDR", "DATABASE_PATH"} {
		t.Setenv(key, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, []string{"gemini-2.5-flash-lite", "gemini-1.5-flash", "gemini-1.5-pro"}, cfg.Gemini.Models)
	assert.Equal(t, 2, cfg.Retry.Ceiling)
	assert.Equal(t, 400*time.Millisecond, cfg.Retry.BaseDelay.Duration)
	assert.Equal(t, []int{429, 503}, cfg.Retry.RetryableStatuses)
	assert.Equal(t, 3, cfg.Render.MaxChunk)
	assert.Equal(t, 20*time.Millisecond, cfg.Render.MinDelay.Duration)
	assert.Equal(t, 59*time.Millisecond, cfg.Render.MaxDelay.Duration)
	assert.Equal(t, 12000, cfg.Attachments.MaxChars)
	assert.Equal(t, 30, cfg.Attachments.MaxPDFPages)
	assert.Equal(t, 3, cfg.Attachments.FreeUploadLimit)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Contains(t, cfg.Gemini.SystemPrompt, "MyMcKenzie AI")
	assert.NoError(t, cfg.Validate())
}

func TestConfig_LoadWithoutFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Gemini.Models, cfg.Gemini.Models)
}

func TestConfig_LoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `
[gemini]
models = ["m1", "m2"]

[retry]
ceiling = 0
base_delay = "250ms"
`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
gemini:
  models: [m1, m2]
retry:
  ceiling: 0
  base_delay: 250ms
`,
		},
		{
			name:    "json",
			file:    "config.json",
			content: `{"gemini": {"models": ["m1", "m2"]}, "retry": {"ceiling": 0, "base_delay": "250ms"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			home := isolate(t)
			writeFile(t, filepath.Join(home, ".mckenzie", tt.file), tt.content)

			cfg, err := Load()
			require.NoError(t, err)

			assert.Equal(t, []string{"m1", "m2"}, cfg.Gemini.Models)
			assert.Equal(t, 0, cfg.Retry.Ceiling, "explicit zero must survive defaults")
			assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay.Duration)
			assert.Equal(t, 3, cfg.Render.MaxChunk, "unset sections keep defaults")
		})
	}
}

func TestConfig_TOMLWinsOverJSON(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".mckenzie", "config.toml"), "[server]\naddr = \":9000\"\n")
	writeFile(t, filepath.Join(home, ".mckenzie", "config.json"), `{"server": {"addr": ":9100"}}`)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, "config.toml", filepath.Base(path))
}

func TestConfig_LoadFromPathInvalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "bad.toml")
	writeFile(t, path, "[render]\nmax_chunk = 0\nmin_delay = \"50ms\"\nmax_delay = \"10ms\"\n")

	// max_chunk 0 is refilled by SetDefaults; the delay window is not.
	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.max_delay")
}

func TestConfig_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "secret-key")
	t.Setenv("MCKENZIE_MODELS", " a , b ,, c")
	t.Setenv("MCKENZIE_LOG_LEVEL", "DEBUG")
	t.Setenv("MCKENZIE_DATA_DIR", "/srv/mckenzie")
	t.Setenv("MCKENZIE_ADDR", "127.0.0.1:8080")
	t.Setenv("DATABASE_PATH", "/tmp/x.db")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "secret-key", cfg.Gemini.APIKey)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Gemini.Models)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join("/srv/mckenzie", "conversations"), cfg.Storage.Dir)
	assert.Equal(t, filepath.Join("/srv/mckenzie", "uploads"), cfg.Attachments.UploadDir)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.SQLitePath)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"negative ceiling", func(c *Config) { c.Retry.Ceiling = -1 }, "retry.ceiling"},
		{"bad status", func(c *Config) { c.Retry.RetryableStatuses = []int{42} }, "retry.retryable_statuses"},
		{"empty model", func(c *Config) { c.Gemini.Models = []string{"m1", " "} }, "gemini.models[1]"},
		{"zero chunk", func(c *Config) { c.Render.MaxChunk = 0 }, "render.max_chunk"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"burst without rps", func(c *Config) { c.Server.RateLimitBurst = 0 }, "server.rate_limit_burst"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateCollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Retry.Ceiling = -1
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	var verrs ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("retry.ceiling", "4"))
	assert.Equal(t, 4, cfg.Retry.Ceiling)

	require.NoError(t, cfg.Set("retry.base_delay", "1s"))
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay.Duration)

	require.NoError(t, cfg.Set("gemini.models", "x, y"))
	assert.Equal(t, []string{"x", "y"}, cfg.Gemini.Models)

	require.NoError(t, cfg.Set("retry.retryable_statuses", "429,500"))
	assert.Equal(t, []int{429, 500}, cfg.Retry.RetryableStatuses)

	require.NoError(t, cfg.Set("attachments.premium", "true"))
	assert.True(t, cfg.Attachments.Premium)

	require.NoError(t, cfg.Set("server.rate_limit_rps", "2.5"))
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)

	v, err := cfg.Get("storage.backend")
	require.NoError(t, err)
	assert.Equal(t, "file", v)

	_, err = cfg.Get("storage.nope")
	assert.Error(t, err)
	_, err = cfg.Get("retry.base_delay.seconds")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("retry.ceiling", "many"))
	assert.Error(t, cfg.Set("", "x"))
}

func TestConfig_AllKeysResolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestConfig_CloneIsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Gemini.Models[0] = "changed"
	clone.Retry.RetryableStatuses[0] = 500

	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Gemini.Models[0])
	assert.Equal(t, 429, cfg.Retry.RetryableStatuses[0])
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Gemini.APIKey = "AIza-very-secret"
	cfg.Server.AuthToken = "bearer-secret"

	s := cfg.String()
	assert.NotContains(t, s, "very-secret")
	assert.NotContains(t, s, "bearer-secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "AIza-very-secret", cfg.Gemini.APIKey)
}

func TestConfig_SaveTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Gemini.Models = []string{"only"}
	cfg.Render.MaxDelay = D(80 * time.Millisecond)

	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# mckenzie configuration file"))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, loaded.Gemini.Models)
	assert.Equal(t, 80*time.Millisecond, loaded.Render.MaxDelay.Duration)
}

func TestConfig_Classifier(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg.Classifier())
}

func TestConfig_Watch(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[server]\naddr = \":9000\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var latest atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { latest.Store(cfg.Server.Addr) })
	}()

	// Give the watcher time to register before the edit.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, path, "[server]\naddr = \":9100\"\n")

	require.Eventually(t, func() bool {
		v, _ := latest.Load().(string)
		return v == ":9100"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestConfig_LoadFileIgnoresEnv(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "from-env")
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadFile(path)
	require.NoError(t, err, "missing file gives defaults")
	assert.Empty(t, cfg.Gemini.APIKey)

	writeFile(t, path, "[gemini]\nmodels = [\"x\"]\n")
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, cfg.Gemini.Models)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}
