// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and turns.
//
// These types are shared by the provider client, the orchestrator, the
// submission flow and the persistence layer.
//
// # Key Types
//
//   - Turn: one message in a conversation, attributed to the user or the model
//   - Part: a unit of turn content, either text or base64 inline data
//   - History: append-only, ordered sequence of turns for one conversation
//   - Conversation: persisted history plus identity and metadata
//   - Attempt: record of one call to one model during a generation
//
// # Usage
//
//	var h model.History
//	h.Append(model.NewUserTurn(model.TextPart("What is a tenancy deposit?")))
//	// ... generate ...
//	h.Append(model.NewModelTurn(reply))
package model
