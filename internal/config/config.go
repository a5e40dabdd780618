// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/mymckenzie/assistant/internal/gemini"
	"github.com/mymckenzie/assistant/internal/util"
)

// DefaultSystemPrompt is sent ahead of every conversation.
const DefaultSystemPrompt = `You are MyMcKenzie AI, an intelligent UK-based legal assistant.
You help litigants in person by offering plain-English legal process guidance.
Never refer to yourself as "Google Gemini." Always use "MyMcKenzie AI."`

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration that reads and writes as "400ms" style text in
// every supported file format.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration { return Duration{d} }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", string(text))
	}
	d.Duration = parsed
	return nil
}

// =============================================================================
// CONFIG STRUCTS
// =============================================================================

// Config is the root configuration.
type Config struct {
	Gemini      GeminiConfig     `toml:"gemini" yaml:"gemini" json:"gemini"`
	Retry       RetryConfig      `toml:"retry" yaml:"retry" json:"retry"`
	Render      RenderConfig     `toml:"render" yaml:"render" json:"render"`
	Attachments AttachmentConfig `toml:"attachments" yaml:"attachments" json:"attachments"`
	Storage     StorageConfig    `toml:"storage" yaml:"storage" json:"storage"`
	Server      ServerConfig     `toml:"server" yaml:"server" json:"server"`
	Log         LogConfig        `toml:"log" yaml:"log" json:"log"`
}

// GeminiConfig configures the generation provider.
type GeminiConfig struct {
	// APIKey is sent as x-goog-api-key. When empty, requests go to ProxyURL.
	APIKey string `toml:"api_key" yaml:"api_key" json:"api_key"`

	BaseURL  string `toml:"base_url" yaml:"base_url" json:"base_url"`
	ProxyURL string `toml:"proxy_url" yaml:"proxy_url" json:"proxy_url"`

	// Models are tried in order.
	Models []string `toml:"models" yaml:"models" json:"models"`

	SystemPrompt string   `toml:"system_prompt" yaml:"system_prompt" json:"system_prompt"`
	Timeout      Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
}

// RetryConfig holds the per-model retry policy.
type RetryConfig struct {
	// Ceiling is the number of retries after the first attempt on one model.
	Ceiling   int      `toml:"ceiling" yaml:"ceiling" json:"ceiling"`
	BaseDelay Duration `toml:"base_delay" yaml:"base_delay" json:"base_delay"`

	RetryableStatuses []int    `toml:"retryable_statuses" yaml:"retryable_statuses" json:"retryable_statuses"`
	RetryablePatterns []string `toml:"retryable_patterns" yaml:"retryable_patterns" json:"retryable_patterns"`
}

// RenderConfig controls the typing effect.
type RenderConfig struct {
	MaxChunk int      `toml:"max_chunk" yaml:"max_chunk" json:"max_chunk"`
	MinDelay Duration `toml:"min_delay" yaml:"min_delay" json:"min_delay"`
	MaxDelay Duration `toml:"max_delay" yaml:"max_delay" json:"max_delay"`
}

// AttachmentConfig controls attachment extraction and upload quota.
type AttachmentConfig struct {
	MaxChars        int    `toml:"max_chars" yaml:"max_chars" json:"max_chars"`
	MaxPDFPages     int    `toml:"max_pdf_pages" yaml:"max_pdf_pages" json:"max_pdf_pages"`
	FreeUploadLimit int    `toml:"free_upload_limit" yaml:"free_upload_limit" json:"free_upload_limit"`
	Premium         bool   `toml:"premium" yaml:"premium" json:"premium"`
	UploadDir       string `toml:"upload_dir" yaml:"upload_dir" json:"upload_dir"`
}

// StorageConfig selects the conversation store.
type StorageConfig struct {
	Backend          string `toml:"backend" yaml:"backend" json:"backend"`
	Dir              string `toml:"dir" yaml:"dir" json:"dir"`
	SQLitePath       string `toml:"sqlite_path" yaml:"sqlite_path" json:"sqlite_path"`
	MaxConversations int    `toml:"max_conversations" yaml:"max_conversations" json:"max_conversations"`
}

// ServerConfig configures `mckenzie serve`.
type ServerConfig struct {
	Addr      string `toml:"addr" yaml:"addr" json:"addr"`
	StaticDir string `toml:"static_dir" yaml:"static_dir" json:"static_dir"`

	// AuthToken enables bearer authentication on /api/ when set.
	AuthToken string `toml:"auth_token" yaml:"auth_token" json:"auth_token"`

	CORSOrigins    []string `toml:"cors_origins" yaml:"cors_origins" json:"cors_origins"`
	RateLimitRPS   float64  `toml:"rate_limit_rps" yaml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" yaml:"rate_limit_burst" json:"rate_limit_burst"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`

	// File additionally writes plain-text logs to a rotated file.
	File string `toml:"file" yaml:"file" json:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Gemini: GeminiConfig{
			BaseURL:      gemini.DefaultBaseURL,
			ProxyURL:     "http://localhost:8000/api/generate",
			Models:       append([]string(nil), gemini.DefaultModels...),
			SystemPrompt: DefaultSystemPrompt,
			Timeout:      D(gemini.DefaultTimeout),
		},
		Retry: RetryConfig{
			Ceiling:           2,
			BaseDelay:         D(400 * time.Millisecond),
			RetryableStatuses: append([]int(nil), gemini.DefaultRetryableStatuses...),
			RetryablePatterns: append([]string(nil), gemini.DefaultRetryablePatterns...),
		},
		Render: RenderConfig{
			MaxChunk: 3,
			MinDelay: D(20 * time.Millisecond),
			MaxDelay: D(59 * time.Millisecond),
		},
		Attachments: AttachmentConfig{
			MaxChars:        12000,
			MaxPDFPages:     30,
			FreeUploadLimit: 3,
			UploadDir:       filepath.Join(dataDir, "uploads"),
		},
		Storage: StorageConfig{
			Backend:          "file",
			Dir:              filepath.Join(dataDir, "conversations"),
			SQLitePath:       filepath.Join(dataDir, "mckenzie.db"),
			MaxConversations: 100,
		},
		Server: ServerConfig{
			Addr:           ":8000",
			StaticDir:      "public",
			RateLimitRPS:   5,
			RateLimitBurst: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func defaultDataDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return ".mckenzie"
	}
	return dir
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the mckenzie configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine home directory")
	}
	return filepath.Join(home, ".mckenzie"), nil
}

// ConfigPath returns the path of the config file with the given extension.
func ConfigPath(ext string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config."+ext), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions tightens config files to 0600, since they may hold an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return errors.Wrapf(err, "failed to fix insecure permissions (was %o)", mode)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// searchOrder lists config file extensions in load precedence.
var searchOrder = []string{"toml", "yaml", "yml", "json"}

// Load loads configuration from the first config file found in the config
// directory (TOML, then YAML, then JSON), falling back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	for _, ext := range searchOrder {
		path, err := ConfigPath(ext)
		if err != nil {
			break
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		return LoadFromPath(path)
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// Path returns the config file Load would read, or the TOML path when none exists yet.
func Path() (string, error) {
	for _, ext := range searchOrder {
		path, err := ConfigPath(ext)
		if err != nil {
			return "", err
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		}
	}
	return ConfigPath("toml")
}

// LoadFromPath loads configuration from a specific file with full validation.
// The format is chosen by extension; anything unrecognised is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// LoadFile reads path over the defaults without environment overrides or
// validation. `mckenzie config set` edits this view so that values from the
// environment are never written back to the file. A missing file yields the
// defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if err := decodeFile(cfg, path); err != nil {
		return nil, errors.Wrapf(err, "failed to load config from %s", path)
	}
	cfg.SetDefaults()
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to read JSON file")
		}
		return errors.Wrap(json.Unmarshal(data, cfg), "failed to decode JSON file")
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "failed to read YAML file")
		}
		return errors.Wrap(yaml.Unmarshal(data, cfg), "failed to decode YAML file")
	default:
		_, err := toml.DecodeFile(path, cfg)
		return errors.Wrap(err, "failed to decode TOML file")
	}
}

// SetDefaults fills empty string and list settings from Default. Numeric
// zeros are kept as written, so `ceiling = 0` disables retries.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = d.Gemini.BaseURL
	}
	if c.Gemini.ProxyURL == "" {
		c.Gemini.ProxyURL = d.Gemini.ProxyURL
	}
	if len(c.Gemini.Models) == 0 {
		c.Gemini.Models = d.Gemini.Models
	}
	if c.Gemini.Timeout.Duration == 0 {
		c.Gemini.Timeout = d.Gemini.Timeout
	}
	if len(c.Retry.RetryableStatuses) == 0 {
		c.Retry.RetryableStatuses = d.Retry.RetryableStatuses
	}
	if len(c.Retry.RetryablePatterns) == 0 {
		c.Retry.RetryablePatterns = d.Retry.RetryablePatterns
	}
	if c.Render.MaxChunk == 0 {
		c.Render.MaxChunk = d.Render.MaxChunk
	}
	if c.Attachments.UploadDir == "" {
		c.Attachments.UploadDir = d.Attachments.UploadDir
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = d.Storage.Dir
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = d.Storage.SQLitePath
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# mckenzie configuration file\n")
	buf.WriteString("# Generated by mckenzie - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every validation failure.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validBackends   = []string{"file", "sqlite"}
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	validLogFormats = []string{"console", "json"}
)

// Validate checks the configuration and returns ValidateErrors listing every problem.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for i, m := range c.Gemini.Models {
		if strings.TrimSpace(m) == "" {
			add(fmt.Sprintf("gemini.models[%d]", i), "model name is empty")
		}
	}
	if c.Gemini.Timeout.Duration < 0 {
		add("gemini.timeout", "must not be negative")
	}

	if c.Retry.Ceiling < 0 || c.Retry.Ceiling > 10 {
		add("retry.ceiling", "must be between 0 and 10, got %d", c.Retry.Ceiling)
	}
	if c.Retry.BaseDelay.Duration < 0 {
		add("retry.base_delay", "must not be negative")
	}
	for _, s := range c.Retry.RetryableStatuses {
		if s < 100 || s > 599 {
			add("retry.retryable_statuses", "invalid HTTP status %d", s)
		}
	}

	if c.Render.MaxChunk < 1 {
		add("render.max_chunk", "must be at least 1")
	}
	if c.Render.MinDelay.Duration < 0 {
		add("render.min_delay", "must not be negative")
	}
	if c.Render.MaxDelay.Duration < c.Render.MinDelay.Duration {
		add("render.max_delay", "must not be less than render.min_delay")
	}

	if c.Attachments.MaxChars < 1 {
		add("attachments.max_chars", "must be at least 1")
	}
	if c.Attachments.MaxPDFPages < 1 {
		add("attachments.max_pdf_pages", "must be at least 1")
	}
	if c.Attachments.FreeUploadLimit < 0 {
		add("attachments.free_upload_limit", "must not be negative")
	}

	if !contains(validBackends, c.Storage.Backend) {
		add("storage.backend", "must be one of %s", strings.Join(validBackends, ", "))
	}
	if c.Storage.MaxConversations < 0 {
		add("storage.max_conversations", "must not be negative")
	}

	if c.Server.RateLimitRPS < 0 {
		add("server.rate_limit_rps", "must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst < 1 {
		add("server.rate_limit_burst", "must be at least 1 when rate limiting is enabled")
	}

	if !contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		add("log.level", "must be one of %s", strings.Join(validLogLevels, ", "))
	}
	if !contains(validLogFormats, strings.ToLower(c.Log.Format)) {
		add("log.format", "must be one of %s", strings.Join(validLogFormats, ", "))
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Classifier builds the retry predicate from the retry section.
func (c *Config) Classifier() gemini.Classifier {
	return gemini.NewClassifier(c.Retry.RetryableStatuses, c.Retry.RetryablePatterns)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
//   - GEMINI_API_KEY: overrides gemini.api_key
//   - MCKENZIE_MODELS: comma-separated gemini.models
//   - MCKENZIE_LOG_LEVEL: overrides log.level
//   - MCKENZIE_DATA_DIR: relocates storage and uploads
//   - MCKENZIE_ADDR: overrides server.addr
//   - DATABASE_PATH: selects the sqlite backend at this path
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}

	if models := os.Getenv("MCKENZIE_MODELS"); models != "" {
		var list []string
		for _, m := range strings.Split(models, ",") {
			if m = strings.TrimSpace(m); m != "" {
				list = append(list, m)
			}
		}
		if len(list) > 0 {
			c.Gemini.Models = list
		}
	}

	if level := os.Getenv("MCKENZIE_LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}

	if dir := os.Getenv("MCKENZIE_DATA_DIR"); dir != "" {
		c.Storage.Dir = filepath.Join(dir, "conversations")
		c.Storage.SQLitePath = filepath.Join(dir, "mckenzie.db")
		c.Attachments.UploadDir = filepath.Join(dir, "uploads")
	}

	if addr := os.Getenv("MCKENZIE_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Storage.Backend = "sqlite"
		c.Storage.SQLitePath = dbPath
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "retry.ceiling").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type; lists are comma-separated.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return errors.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, errors.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct || field.Type() == durationType {
			return reflect.Value{}, errors.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, errors.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

var durationType = reflect.TypeOf(Duration{})

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		if field.Type() == durationType {
			var d Duration
			if err := d.UnmarshalText([]byte(strVal)); err != nil {
				return err
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return errors.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return errors.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			return setSliceValue(field, strVal)
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return errors.Errorf("cannot assign %T to %s", value, field.Type())
}

func setSliceValue(field reflect.Value, s string) error {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	out := reflect.MakeSlice(field.Type(), 0, len(items))
	for _, item := range items {
		elem := reflect.New(field.Type().Elem()).Elem()
		if err := setFieldValue(elem, item); err != nil {
			return err
		}
		out = reflect.Append(out, elem)
	}
	field.Set(out)
	return nil
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"gemini.api_key",
		"gemini.base_url",
		"gemini.proxy_url",
		"gemini.models",
		"gemini.system_prompt",
		"gemini.timeout",
		"retry.ceiling",
		"retry.base_delay",
		"retry.retryable_statuses",
		"retry.retryable_patterns",
		"render.max_chunk",
		"render.min_delay",
		"render.max_delay",
		"attachments.max_chars",
		"attachments.max_pdf_pages",
		"attachments.free_upload_limit",
		"attachments.premium",
		"attachments.upload_dir",
		"storage.backend",
		"storage.dir",
		"storage.sqlite_path",
		"storage.max_conversations",
		"server.addr",
		"server.static_dir",
		"server.auth_token",
		"server.cors_origins",
		"server.rate_limit_rps",
		"server.rate_limit_burst",
		"log.level",
		"log.format",
		"log.file",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Gemini.Models = append([]string(nil), c.Gemini.Models...)
	clone.Retry.RetryableStatuses = append([]int(nil), c.Retry.RetryableStatuses...)
	clone.Retry.RetryablePatterns = append([]string(nil), c.Retry.RetryablePatterns...)
	clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Gemini.APIKey != "" {
		safe.Gemini.APIKey = "[REDACTED]"
	}
	if safe.Server.AuthToken != "" {
		safe.Server.AuthToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
