// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mymckenzie/assistant/internal/model"
)

const (
	headerHeight = 1
	footerHeight = 2
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) renderHeader() string {
	title := m.theme.Header.Render(m.title)
	sub := m.theme.Subtitle.Render(" legal information, not legal advice")
	return clip(title+sub, m.width)
}

func (m Model) renderStatus() string {
	var left string
	switch m.state {
	case StateWaiting:
		left = m.spinner.View() + m.theme.StatusBusy.Render(" thinking")
	case StateTyping:
		left = m.spinner.View() + m.theme.StatusBusy.Render(" typing")
	default:
		left = m.theme.StatusReady.Render("ready")
	}

	if m.status != "" {
		style := m.theme.Hint
		switch m.statusKind {
		case statusNotice:
			style = m.theme.StatusNotice
		case statusError:
			style = m.theme.StatusError
		}
		left += "  " + style.Render(m.status)
	} else if m.pending != nil {
		left += "  " + m.theme.StatusNotice.Render("📎 "+m.pending.Name)
	}

	var help []string
	for _, k := range m.keys.ShortHelp() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	right := m.theme.Hint.Render(strings.Join(help, " · "))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return clip(left, m.width)
	}
	return left + strings.Repeat(" ", gap) + right
}

// refresh rebuilds the transcript and keeps it scrolled to the end.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return m.theme.Hint.Render("Ask a question about your case to get started.")
	}

	body := m.theme.Body.Width(max(m.width-2, 10))
	sep := m.theme.Separator.Render(strings.Repeat("─", max(m.width-2, 10)))

	var b strings.Builder
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n" + sep + "\n")
		}
		if e.role == model.RoleUser {
			b.WriteString(m.theme.UserLabel.Render(e.role.DisplayName()))
		} else {
			b.WriteString(m.theme.ModelLabel.Render(e.role.DisplayName()))
		}
		b.WriteString("\n")

		text := e.text
		switch {
		case e.sink != nil:
			text = e.sink.Content()
		case e.role == model.RoleModel:
			text = m.markup.Final(e.text)
		}
		if text != "" {
			b.WriteString(body.Render(text))
			b.WriteString("\n")
		}
		if e.attachment != "" {
			b.WriteString(m.theme.Attachment.Render("[attachment: " + e.attachment + "]"))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// clip cuts styled text to width cells.
func clip(s string, width int) string {
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
