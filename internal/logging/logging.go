// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Option customises Setup.
type Option func(*options)

type options struct {
	file    string
	noColor bool
}

// WithFile also writes logs to path, rotated at 10MB with three backups kept.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithNoColor disables ANSI colour in console output.
func WithNoColor() Option {
	return func(o *options) { o.noColor = true }
}

// Setup points the global logger at w. Format "console" gives human-readable
// lines, "json" gives one JSON object per line.
func Setup(level, format string, w io.Writer, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var out io.Writer
	switch strings.ToLower(format) {
	case "", "console", "text":
		out = zerolog.ConsoleWriter{Out: w, NoColor: o.noColor, TimeFormat: time.Kitchen}
	case "json":
		out = w
	default:
		return errors.Errorf("unknown log format %q", format)
	}

	if o.file != "" {
		out = io.MultiWriter(out, zerolog.ConsoleWriter{
			NoColor: true,
			Out: &lumberjack.Logger{
				Filename:   o.file,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			},
		})
	}

	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log level %q", level)
	}
	return lvl, nil
}
