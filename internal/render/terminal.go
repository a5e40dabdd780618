// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog/log"
)

// TerminalMarkup shows plain text while typing and renders the completed
// reply as markdown with glamour.
type TerminalMarkup struct {
	mu       sync.Mutex
	renderer *glamour.TermRenderer
}

// NewTerminalMarkup creates a terminal markup wrapping at width columns.
// With styled false the final pass is plain text as well.
func NewTerminalMarkup(width int, styled bool) *TerminalMarkup {
	m := &TerminalMarkup{}
	if !styled {
		return m
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Msg("markdown renderer unavailable, using plain output")
		return m
	}
	m.renderer = r
	return m
}

// Partial returns accumulated unchanged.
func (m *TerminalMarkup) Partial(accumulated string) string {
	return accumulated
}

// Final renders text as markdown, falling back to the raw text.
func (m *TerminalMarkup) Final(text string) string {
	if m.renderer == nil {
		return text
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// =============================================================================
// TERMINAL SINK
// =============================================================================

// TerminalSink writes a render to a terminal. Writes that extend what is
// already on screen print only the new suffix; any other write erases the
// printed rows and prints the new content.
type TerminalSink struct {
	mu       sync.Mutex
	out      *termenv.Output
	width    int
	printed  string
	finished bool
}

// NewTerminalSink creates a sink writing to w, a terminal width columns wide.
func NewTerminalSink(w io.Writer, width int) *TerminalSink {
	if width <= 0 {
		width = 80
	}
	return &TerminalSink{out: termenv.NewOutput(w), width: width}
}

// Write implements Sink.
func (s *TerminalSink) Write(markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(markup, s.printed) {
		s.out.WriteString(markup[len(s.printed):])
		s.printed = markup
		return
	}

	if rows := s.rows(s.printed); rows > 1 {
		s.out.ClearLines(rows - 1)
	} else {
		s.out.ClearLine()
	}
	s.out.WriteString("\r" + markup)
	s.printed = markup
}

// Finish implements Sink.
func (s *TerminalSink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finished {
		s.out.WriteString("\n")
		s.finished = true
	}
}

// Reset prepares the sink for the next reply.
func (s *TerminalSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printed = ""
	s.finished = false
}

// rows returns how many terminal rows text occupies once wrapped.
func (s *TerminalSink) rows(text string) int {
	if text == "" {
		return 0
	}
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		w := runewidth.StringWidth(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w + s.width - 1) / s.width
	}
	return rows
}
