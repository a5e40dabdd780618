// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the mckenzie command line.
//
// # Commands
//
//   - ask: one question, optionally with --file; the reply types out on a
//     terminal and prints plainly when piped
//   - chat: line-based interactive chat with /file, /reset and /history
//   - tui: the full-screen chat (also the default with no command)
//   - serve: the HTTP API and static pages
//   - list, export: stored conversations
//   - config: show, get, set, path
//   - version
//
// Every command takes --json for machine-readable output, --config to read
// another config file and --user to act on another user's conversations.
//
// # Usage
//
//	os.Exit(cli.Execute(context.Background()))
package cli
