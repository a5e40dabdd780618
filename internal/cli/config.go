// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - The "mckenzie config" command.
//
// Subcommands:
//   show (default)      Display the effective configuration
//   get <key>           Print one value
//   set <key> <value>   Change a value in the config file
//   path                Show the config file path
//
// Examples:
//   mckenzie config set gemini.models gemini-2.5-flash-lite,gemini-1.5-pro
//   mckenzie config set retry.base_delay 500ms
//   mckenzie config set storage.backend sqlite
//   mckenzie config get render.max_delay

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mymckenzie/assistant/internal/config"
)

// secretKeys are masked whenever they are printed.
var secretKeys = map[string]bool{
	"gemini.api_key":    true,
	"server.auth_token": true,
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.configShow()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display the effective configuration (file, environment and defaults)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.configShow()
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one configuration value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.configGet(args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change a value in the config file",
			Long: "Change a value in the config file. Lists are comma-separated.\n\nKeys:\n  " +
				strings.Join(config.GetAllKeys(), "\n  "),
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.configSet(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := a.configFile()
				if err != nil {
					return err
				}
				return OutputJSON(a.out, a.jsonMode, "config path", func() (interface{}, error) {
					if !a.jsonMode {
						fmt.Fprintln(a.out, path)
					}
					return map[string]string{"path": path}, nil
				})
			},
		},
	)
	return cmd
}

func (a *app) configShow() error {
	// String redacts secrets.
	redacted := a.cfg.String()
	if a.jsonMode {
		return NewJSONResponse("config show", json.RawMessage(redacted)).Print(a.out)
	}
	path, _ := a.configFile()
	fmt.Fprintln(a.out, TitleStyle.Render("Configuration"))
	fmt.Fprintf(a.out, "%s%s\n\n", RenderLabel("File:"), path)
	fmt.Fprintln(a.out, redacted)
	return nil
}

func (a *app) configGet(key string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value, err := a.cfg.Get(key)
	if err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error()}
	}
	text := formatValue(value)
	if secretKeys[key] {
		text = maskSecret(text)
	}
	return OutputJSON(a.out, a.jsonMode, "config get", func() (interface{}, error) {
		if !a.jsonMode {
			fmt.Fprintln(a.out, text)
		}
		return map[string]string{"key": key, "value": text}, nil
	})
}

// configSet edits the file view of the configuration so environment
// overrides are not written back.
func (a *app) configSet(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	path, err := a.configFile()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return &ConfigError{Err: err}
	}
	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: key, Value: value, Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	shown := value
	if secretKeys[key] {
		shown = maskSecret(value)
	}
	return OutputJSON(a.out, a.jsonMode, "config set", func() (interface{}, error) {
		if !a.jsonMode {
			fmt.Fprintf(a.out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, shown)
		}
		return map[string]string{"key": key, "value": shown, "path": path}, nil
	})
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case []string:
		return strings.Join(val, ",")
	case []int:
		parts := make([]string, len(val))
		for i, n := range val {
			parts[i] = fmt.Sprint(n)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

// maskSecret keeps the last four characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
