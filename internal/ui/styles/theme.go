// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components of the chat screen.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	Header     lipgloss.Style
	Subtitle   lipgloss.Style
	Separator  lipgloss.Style
	UserLabel  lipgloss.Style
	ModelLabel lipgloss.Style
	Body       lipgloss.Style
	Attachment lipgloss.Style

	StatusBar    lipgloss.Style
	StatusReady  lipgloss.Style
	StatusBusy   lipgloss.Style
	StatusNotice lipgloss.Style
	StatusError  lipgloss.Style
	Hint         lipgloss.Style

	Prompt  lipgloss.Style
	Spinner lipgloss.Style
}

// NewTheme detects the terminal background and builds the styles.
func NewTheme() *Theme {
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Navy).
		Background(SurfaceDim).
		Padding(0, 1)

	t.Subtitle = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.Separator = lipgloss.NewStyle().Foreground(Overlay)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.ModelLabel = lipgloss.NewStyle().Bold(true).Foreground(Navy)
	t.Body = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Attachment = lipgloss.NewStyle().Foreground(TextMuted).Italic(true).PaddingLeft(2)

	t.StatusBar = lipgloss.NewStyle().Background(SurfaceDim).Padding(0, 1)
	t.StatusReady = lipgloss.NewStyle().Foreground(Emerald)
	t.StatusBusy = lipgloss.NewStyle().Foreground(Navy)
	t.StatusNotice = lipgloss.NewStyle().Foreground(Amber)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose)
	t.Hint = lipgloss.NewStyle().Foreground(TextMuted)

	t.Prompt = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.Spinner = lipgloss.NewStyle().Foreground(Navy)
}
