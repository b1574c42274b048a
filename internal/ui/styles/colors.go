// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// ACCENT COLORS
// =============================================================================

// Violet - Primary accent, header, focus
var Violet = lipgloss.AdaptiveColor{Light: "#6D28D9", Dark: "#C4B5FD"}

// Teal - Selected keywords, links
var Teal = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#5EEAD4"}

// Sage - Success notices
var Sage = lipgloss.AdaptiveColor{Light: "#3F7D3A", Dark: "#A3D9A5"}

// Gold - Warnings, pending confirmation
var Gold = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FCD34D"}

// Coral - Errors, destructive actions
var Coral = lipgloss.AdaptiveColor{Light: "#C2410C", Dark: "#FDA4AF"}

// =============================================================================
// SURFACE AND TEXT COLORS
// =============================================================================

// Surface - Main background
var Surface = lipgloss.AdaptiveColor{Light: "#FBF8F3", Dark: "#1C1B22"}

// SurfaceDim - Header, status bar
var SurfaceDim = lipgloss.AdaptiveColor{Light: "#F1ECE3", Dark: "#15141A"}

// SurfaceBright - Chips, cards
var SurfaceBright = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#2A2833"}

// Overlay - Borders, separators
var Overlay = lipgloss.AdaptiveColor{Light: "#D6CFC2", Dark: "#3A3745"}

// TextPrimary - Story text
var TextPrimary = lipgloss.AdaptiveColor{Light: "#2B2620", Dark: "#E8E4F0"}

// TextSecondary - Labels
var TextSecondary = lipgloss.AdaptiveColor{Light: "#6B6257", Dark: "#B3ADC2"}

// TextMuted - Timestamps, hints
var TextMuted = lipgloss.AdaptiveColor{Light: "#9C9285", Dark: "#6F6A7D"}

// =============================================================================
// AUTHOR PALETTE
// =============================================================================

// AuthorPalette colors turn bubbles. Index with a stable hash of the author
// name so an author keeps its color for the whole session.
var AuthorPalette = []lipgloss.AdaptiveColor{
	{Light: "#7C3AED", Dark: "#A78BFA"}, // violet
	{Light: "#0891B2", Dark: "#22D3EE"}, // cyan
	{Light: "#059669", Dark: "#34D399"}, // emerald
	{Light: "#D97706", Dark: "#FBBF24"}, // amber
	{Light: "#E11D48", Dark: "#FB7185"}, // rose
	{Light: "#2563EB", Dark: "#60A5FA"}, // blue
	{Light: "#C026D3", Dark: "#E879F9"}, // fuchsia
	{Light: "#65A30D", Dark: "#A3E635"}, // lime
	{Light: "#EA580C", Dark: "#FB923C"}, // orange
	{Light: "#0D9488", Dark: "#2DD4BF"}, // teal
	{Light: "#4F46E5", Dark: "#818CF8"}, // indigo
	{Light: "#DB2777", Dark: "#F472B6"}, // pink
}

// NarratorColor is used for the narrator instead of a palette entry.
var NarratorColor = lipgloss.AdaptiveColor{Light: "#57534E", Dark: "#D6D3D1"}

// =============================================================================
// ACCESSIBILITY: Shapes alongside color
// =============================================================================

// StatusIndicatorSet contains text indicators for notice levels.
type StatusIndicatorSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Pending string
}

// StatusIndicators are ASCII-only so they survive any terminal font.
var StatusIndicators = StatusIndicatorSet{
	Success: "[OK]",
	Error:   "[X]",
	Warning: "[!]",
	Info:    "[i]",
	Pending: "[ ]",
}
