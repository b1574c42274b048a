// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// IMAGE GENERATION SETTINGS
// =============================================================================

// ImageMode selects when images are generated.
type ImageMode string

const (
	// ModeAfterChat generates once after each successful chat turn.
	ModeAfterChat ImageMode = "after_chat"
	// ModePeriodic generates on a fixed interval regardless of chat activity.
	ModePeriodic ImageMode = "periodic"
)

// Valid reports whether m is a known mode.
func (m ImageMode) Valid() bool {
	return m == ModeAfterChat || m == ModePeriodic
}

const (
	// MinIntervalSeconds is the floor for the periodic interval.
	MinIntervalSeconds = 5
	// DefaultIntervalSeconds is used when no interval has been chosen.
	DefaultIntervalSeconds = 30
)

// ClampInterval applies the periodic interval floor.
func ClampInterval(seconds int) int {
	if seconds < MinIntervalSeconds {
		return MinIntervalSeconds
	}
	return seconds
}

// ImageGeneration configures the image cadence.
type ImageGeneration struct {
	Enabled         bool      `json:"enabled"`
	Mode            ImageMode `json:"mode"`
	IntervalSeconds int       `json:"intervalSeconds"`
}

// =============================================================================
// THEME
// =============================================================================

// Theme is the color scheme name.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeDark || t == ThemeLight
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings holds the user-adjustable session preferences.
type Settings struct {
	ImageGeneration ImageGeneration `json:"imageGeneration"`
	SelectedAuthor  Author          `json:"selectedAuthor"`
	Theme           Theme           `json:"theme"`
}

// DefaultSettings returns the settings of a fresh session.
func DefaultSettings() Settings {
	return Settings{
		ImageGeneration: ImageGeneration{
			Enabled:         true,
			Mode:            ModeAfterChat,
			IntervalSeconds: DefaultIntervalSeconds,
		},
		SelectedAuthor: AuthorDirect,
		Theme:          ThemeDark,
	}
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	ImageEnabled    *bool
	ImageMode       *ImageMode
	IntervalSeconds *int
	SelectedAuthor  *Author
	Theme           *Theme
}

// Apply merges the patch into s. The interval is clamped; an unknown mode or
// theme keeps the previous value. It reports whether anything changed.
func (p SettingsPatch) Apply(s Settings) (Settings, bool) {
	next := s
	if p.ImageEnabled != nil {
		next.ImageGeneration.Enabled = *p.ImageEnabled
	}
	if p.ImageMode != nil && p.ImageMode.Valid() {
		next.ImageGeneration.Mode = *p.ImageMode
	}
	if p.IntervalSeconds != nil {
		next.ImageGeneration.IntervalSeconds = ClampInterval(*p.IntervalSeconds)
	}
	if p.SelectedAuthor != nil {
		next.SelectedAuthor = NormalizeAuthor(string(*p.SelectedAuthor))
	}
	if p.Theme != nil && p.Theme.Valid() {
		next.Theme = *p.Theme
	}
	return next, next != s
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}
