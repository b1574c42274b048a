// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the storyloom TUI.

Colors are Lip Gloss AdaptiveColor pairs. Unlike terminal-detected adaptive
colors, the side of each pair is chosen by the session's own theme setting,
so the dark/light toggle works regardless of the terminal background.

# Color System (colors.go)

  - Accent colors: Violet, Teal, Sage, Gold, Coral
  - Surface and text colors for layered backgrounds
  - AuthorPalette: the colors turn bubbles are drawn with, indexed by a
    stable hash of the author name

# Theme (theme.go)

Theme holds every lipgloss.Style used by the renderer and the TUI:

	theme := styles.NewTheme(model.ThemeDark)
	label := theme.AuthorLabel(3).Render("Mira")

Switching theme builds a new Theme; styles are immutable values.
*/
package styles
