// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/storyloom/internal/model"
)

// Theme holds all the styled components for one color mode.
type Theme struct {
	Mode         model.Theme
	HasTrueColor bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER STYLES
	// ==========================================================================

	App            lipgloss.Style
	Header         lipgloss.Style
	HeaderTitle    lipgloss.Style
	HeaderSubtitle lipgloss.Style

	// ==========================================================================
	// STORY STYLES
	// ==========================================================================

	TurnText    lipgloss.Style
	TurnEditing lipgloss.Style
	TurnCursor  lipgloss.Style
	Timestamp   lipgloss.Style
	AudioLink   lipgloss.Style
	EmptyStory  lipgloss.Style

	// ==========================================================================
	// KEYWORD AND IMAGE STYLES
	// ==========================================================================

	Chip          lipgloss.Style
	ChipSelected  lipgloss.Style
	ChipCursor    lipgloss.Style
	ImageCard     lipgloss.Style
	ImageURL      lipgloss.Style
	ImagePrompt   lipgloss.Style
	SectionHeader lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS STYLES
	// ==========================================================================

	InputContainer   lipgloss.Style
	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
	StatusBar        lipgloss.Style
	StatusKey        lipgloss.Style
	StatusValue      lipgloss.Style
	StatusBusy       lipgloss.Style

	// ==========================================================================
	// OVERLAY STYLES
	// ==========================================================================

	ConfirmBox          lipgloss.Style
	ConfirmTitle        lipgloss.Style
	ConfirmButton       lipgloss.Style
	ConfirmButtonActive lipgloss.Style
	ToastInfo           lipgloss.Style
	ToastWarning        lipgloss.Style
	ToastError          lipgloss.Style
	Muted               lipgloss.Style
}

// NewTheme builds the styles for mode. An unknown mode falls back to dark.
func NewTheme(mode model.Theme) *Theme {
	if !mode.Valid() {
		mode = model.ThemeDark
	}
	profile := termenv.ColorProfile()
	t := &Theme{
		Mode:         mode,
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// Resolve picks the side of an adaptive color that matches the theme mode.
func (t *Theme) Resolve(c lipgloss.AdaptiveColor) lipgloss.Color {
	if t.Mode == model.ThemeLight {
		return lipgloss.Color(c.Light)
	}
	return lipgloss.Color(c.Dark)
}

// AuthorColor returns palette entry index, wrapping out-of-range values.
// A negative index selects the narrator color.
func (t *Theme) AuthorColor(index int) lipgloss.Color {
	if index < 0 {
		return t.Resolve(NarratorColor)
	}
	return t.Resolve(AuthorPalette[index%len(AuthorPalette)])
}

// AuthorLabel styles an author name in its palette color.
func (t *Theme) AuthorLabel(index int) lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(t.AuthorColor(index))
}

// AuthorBubble styles a group of turns with a left rule in the author color.
func (t *Theme) AuthorBubble(index int) lipgloss.Style {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.ThickBorder()).
		BorderLeft(true).
		BorderForeground(t.AuthorColor(index)).
		PaddingLeft(1).
		MarginBottom(1)
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	c := t.Resolve

	t.App = lipgloss.NewStyle()

	// Header
	t.Header = lipgloss.NewStyle().
		Background(c(SurfaceDim)).
		Padding(0, 1)

	t.HeaderTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(c(Violet))

	t.HeaderSubtitle = lipgloss.NewStyle().
		Foreground(c(TextSecondary)).
		Italic(true)

	// Story
	t.TurnText = lipgloss.NewStyle().
		Foreground(c(TextPrimary))

	t.TurnEditing = lipgloss.NewStyle().
		Foreground(c(TextPrimary)).
		Background(c(SurfaceBright)).
		Underline(true)

	t.TurnCursor = lipgloss.NewStyle().
		Foreground(c(Violet)).
		Bold(true)

	t.Timestamp = lipgloss.NewStyle().
		Foreground(c(TextMuted))

	t.AudioLink = lipgloss.NewStyle().
		Foreground(c(Teal)).
		Underline(true)

	t.EmptyStory = lipgloss.NewStyle().
		Foreground(c(TextMuted)).
		Italic(true).
		Padding(1, 2)

	// Keywords and images
	t.Chip = lipgloss.NewStyle().
		Foreground(c(TextSecondary)).
		Background(c(SurfaceBright)).
		Padding(0, 1)

	t.ChipSelected = lipgloss.NewStyle().
		Foreground(c(Surface)).
		Background(c(Teal)).
		Bold(true).
		Padding(0, 1)

	t.ChipCursor = lipgloss.NewStyle().
		Underline(true)

	t.ImageCard = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(c(Overlay)).
		Padding(0, 1)

	t.ImageURL = lipgloss.NewStyle().
		Foreground(c(Teal))

	t.ImagePrompt = lipgloss.NewStyle().
		Foreground(c(TextSecondary)).
		Italic(true)

	t.SectionHeader = lipgloss.NewStyle().
		Foreground(c(TextMuted)).
		Bold(true)

	// Input and status
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(c(Overlay)).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(c(Violet)).
		Bold(true)

	t.InputPlaceholder = lipgloss.NewStyle().
		Foreground(c(TextMuted)).
		Italic(true)

	t.StatusBar = lipgloss.NewStyle().
		Background(c(SurfaceDim)).
		Foreground(c(TextSecondary)).
		Padding(0, 1)

	t.StatusKey = lipgloss.NewStyle().
		Foreground(c(TextMuted))

	t.StatusValue = lipgloss.NewStyle().
		Foreground(c(TextPrimary)).
		Bold(true)

	t.StatusBusy = lipgloss.NewStyle().
		Foreground(c(Gold)).
		Bold(true)

	// Overlays
	t.ConfirmBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(c(Coral)).
		Padding(1, 2)

	t.ConfirmTitle = lipgloss.NewStyle().
		Foreground(c(Coral)).
		Bold(true)

	t.ConfirmButton = lipgloss.NewStyle().
		Foreground(c(TextSecondary)).
		Padding(0, 2)

	t.ConfirmButtonActive = lipgloss.NewStyle().
		Foreground(c(Surface)).
		Background(c(Coral)).
		Bold(true).
		Padding(0, 2)

	t.ToastInfo = lipgloss.NewStyle().
		Foreground(c(Sage)).
		Bold(true)

	t.ToastWarning = lipgloss.NewStyle().
		Foreground(c(Gold)).
		Bold(true)

	t.ToastError = lipgloss.NewStyle().
		Foreground(c(Coral)).
		Bold(true)

	t.Muted = lipgloss.NewStyle().
		Foreground(c(TextMuted))
}
