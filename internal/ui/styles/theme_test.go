// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/storyloom/internal/model"
)

// =============================================================================
// THEME CREATION TESTS
// =============================================================================

func TestNewTheme(t *testing.T) {
	theme := NewTheme(model.ThemeDark)
	if theme == nil {
		t.Fatal("NewTheme() returned nil")
	}
	if theme.Mode != model.ThemeDark {
		t.Errorf("Mode = %q, want dark", theme.Mode)
	}
	if theme.App.Render("test") == "" {
		t.Error("NewTheme() should initialize App style")
	}
}

func TestNewTheme_InvalidModeFallsBackToDark(t *testing.T) {
	theme := NewTheme(model.Theme("sepia"))
	if theme.Mode != model.ThemeDark {
		t.Errorf("Mode = %q, want dark", theme.Mode)
	}
}

func TestResolve(t *testing.T) {
	c := lipgloss.AdaptiveColor{Light: "#111111", Dark: "#EEEEEE"}

	if got := NewTheme(model.ThemeLight).Resolve(c); got != lipgloss.Color("#111111") {
		t.Errorf("light Resolve = %v", got)
	}
	if got := NewTheme(model.ThemeDark).Resolve(c); got != lipgloss.Color("#EEEEEE") {
		t.Errorf("dark Resolve = %v", got)
	}
}

// =============================================================================
// AUTHOR COLOR TESTS
// =============================================================================

func TestAuthorColor(t *testing.T) {
	theme := NewTheme(model.ThemeDark)
	n := len(AuthorPalette)

	if theme.AuthorColor(1) != theme.AuthorColor(1+n) {
		t.Error("AuthorColor should wrap around the palette")
	}
	if theme.AuthorColor(-1) != lipgloss.Color(NarratorColor.Dark) {
		t.Error("negative index should select the narrator color")
	}
	if theme.AuthorColor(0) == theme.AuthorColor(1) {
		t.Error("adjacent palette entries should differ")
	}
}

func TestAuthorPalette_Distinct(t *testing.T) {
	seen := make(map[string]bool)
	for i, c := range AuthorPalette {
		if c.Light == "" || c.Dark == "" {
			t.Errorf("palette entry %d is missing a side", i)
		}
		if seen[c.Dark] {
			t.Errorf("palette entry %d duplicates %s", i, c.Dark)
		}
		seen[c.Dark] = true
	}
}
