// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat implements the Bubble Tea chat screen.

The screen drives a session: Enter submits the input (with any file
attached via "/file <path>"), Esc stops the reply being generated or typed,
and Ctrl+L starts a new conversation. Replies type out into a render.Buffer
that the screen redraws every frame.

# Usage

	notices := chat.NewNoticeQueue()
	sess := session.New(cfg, orch, renderer, session.WithNotifier(notices))
	m := chat.New(sess, chat.Options{Markup: renderer.Markup(), Notices: notices})
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
*/
package chat
