// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat ties the pipeline together for one conversation.
//
// A Session takes a Submission (text and/or a file), reserves upload quota,
// stores and extracts the attachment, records the user turn, asks the
// Generator for a reply and types it into a render.Sink. Only one submission
// per session runs at a time.
//
//	sess := chat.New(chat.Config{UserID: "u1", ConversationID: id, Models: models},
//	    orch, render.New(), chat.WithStore(store))
//	res, err := sess.Submit(ctx, chat.Submission{Text: "What is a McKenzie Friend?"}, sink)
package chat
