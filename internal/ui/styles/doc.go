// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and lip gloss styles of the terminal UI.

All colors are lipgloss.AdaptiveColor values, so they follow the terminal's
light or dark background.

# Usage

	theme := styles.NewTheme()
	label := theme.UserLabel.Render("You")
*/
package styles
