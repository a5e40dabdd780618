// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for mckenzie.
//
// TOML, YAML and JSON files are supported, with defaults, environment
// variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: root configuration with one section per subsystem
//   - Duration: time.Duration that reads "400ms" style text in every format
//   - ValidateErrors: every validation failure found in one pass
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GEMINI_API_KEY, MCKENZIE_*, DATABASE_PATH)
//   - ~/.mckenzie/config.toml
//   - ~/.mckenzie/config.yaml
//   - ~/.mckenzie/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	orch := orchestrator.New(client,
//	    orchestrator.WithRetryCeiling(cfg.Retry.Ceiling),
//	    orchestrator.WithClassifier(cfg.Classifier()))
package config
