// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render progressively reveals a completed reply into a display sink,
// producing a typing effect.
//
// Each step appends 1..MaxChunk characters and writes the markup of the whole
// accumulated prefix to the sink, then waits a random delay. After the last
// chunk a final pass writes the fully styled markup and marks the sink
// finished. A render can be cancelled at any step; cancellation stops all
// further writes and skips the final pass.
//
// Only one render is active per sink: starting a new render on a sink
// cancels the unfinished one.
//
// # Key Types
//
//   - Renderer: schedules renders and tracks the active render per sink
//   - Handle: controls one render (Cancel, Done, Session)
//   - Sink: display surface receiving markup
//   - Markup: transforms accumulated text for partial and final writes
//
// # Markup
//
//   - HTMLMarkup: escapes and linkifies; the final pass also styles headings
//     and bold text
//   - TerminalMarkup: plain partials; the final pass renders markdown with
//     glamour
//   - PlainMarkup: identity
package render
