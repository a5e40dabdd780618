// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes stored conversations as Markdown, HTML or JSON.
//
// # Key Types
//
//   - Exporter: one output format
//   - Format: md, html or json
//   - Options: metadata, timestamps and HTML theme
//
// # Usage
//
//	conv, err := store.Load(ctx, userID, convID)
//	path, err := export.Write(conv, export.FormatHTML, "out/", nil)
package export
