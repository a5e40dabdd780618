// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations and uploaded attachments.
//
// Conversations are keyed by user ID and conversation ID. Turns are only
// appended; Reset clears a conversation's turns in one step.
//
// # Backends
//
//   - FileStore: one JSON file per conversation under BaseDir/<user>/,
//     written atomically
//   - SQLiteStore: a single SQLite database (pure Go driver)
//
// # Key Types
//
//   - Store: backend-neutral conversation persistence
//   - ConversationMeta: listing entry with title and preview
//   - BlobStore: on-disk attachment uploads
//
// # Usage
//
//	store, err := storage.Open(storage.Options{Backend: "sqlite", SQLitePath: path})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	err = store.AppendTurn(ctx, userID, convID, model.NewModelTurn(reply))
package storage
