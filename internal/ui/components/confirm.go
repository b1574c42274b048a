// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/storyloom/internal/ui/styles"
)

// =============================================================================
// CONFIRM PROMPT
// =============================================================================

// Button options
const (
	ButtonNo    = 0
	ButtonYes   = 1
	ButtonCount = 2
)

// ConfirmResultMsg is sent when the user answers the prompt.
type ConfirmResultMsg struct {
	Yes bool
}

// ConfirmKeyMap holds the prompt's bindings.
type ConfirmKeyMap struct {
	Yes    key.Binding
	No     key.Binding
	Select key.Binding
	Next   key.Binding
	Prev   key.Binding
}

// DefaultConfirmKeyMap returns the standard bindings.
func DefaultConfirmKeyMap() ConfirmKeyMap {
	return ConfirmKeyMap{
		Yes:    key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "yes")),
		No:     key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n/esc", "no")),
		Select: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "choose")),
		Next:   key.NewBinding(key.WithKeys("right", "l", "tab")),
		Prev:   key.NewBinding(key.WithKeys("left", "h", "shift+tab")),
	}
}

// ConfirmPrompt is a modal yes/no dialog. No is focused first.
type ConfirmPrompt struct {
	title    string
	prompt   string
	visible  bool
	selected int
	width    int
	height   int

	keys  ConfirmKeyMap
	theme *styles.Theme
}

// NewConfirmPrompt creates a hidden prompt.
func NewConfirmPrompt(theme *styles.Theme) *ConfirmPrompt {
	return &ConfirmPrompt{
		theme:    theme,
		keys:     DefaultConfirmKeyMap(),
		selected: ButtonNo,
	}
}

// Show displays prompt under title.
func (p *ConfirmPrompt) Show(title, prompt string) {
	p.title = title
	p.prompt = prompt
	p.visible = true
	p.selected = ButtonNo
}

// Hide hides the prompt without answering.
func (p *ConfirmPrompt) Hide() {
	p.visible = false
	p.title = ""
	p.prompt = ""
}

// IsVisible returns whether the prompt is visible.
func (p *ConfirmPrompt) IsVisible() bool {
	return p.visible
}

// Selected returns the focused button.
func (p *ConfirmPrompt) Selected() int {
	return p.selected
}

// SetTheme swaps the styles, used when the theme mode toggles.
func (p *ConfirmPrompt) SetTheme(theme *styles.Theme) {
	p.theme = theme
}

// SetSize updates the prompt dimensions.
func (p *ConfirmPrompt) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// =============================================================================
// BUBBLE TEA METHODS
// =============================================================================

// Update handles key events. The bool reports whether the key was consumed;
// a visible prompt consumes every key so nothing leaks to the input below.
func (p *ConfirmPrompt) Update(msg tea.Msg) (tea.Cmd, bool) {
	if !p.visible {
		return nil, false
	}
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, false
	}

	switch {
	case key.Matches(km, p.keys.Yes):
		return p.answer(true), true
	case key.Matches(km, p.keys.No):
		return p.answer(false), true
	case key.Matches(km, p.keys.Select):
		return p.answer(p.selected == ButtonYes), true
	case key.Matches(km, p.keys.Next):
		p.selected = (p.selected + 1) % ButtonCount
	case key.Matches(km, p.keys.Prev):
		p.selected = (p.selected - 1 + ButtonCount) % ButtonCount
	}
	return nil, true
}

func (p *ConfirmPrompt) answer(yes bool) tea.Cmd {
	p.Hide()
	return func() tea.Msg {
		return ConfirmResultMsg{Yes: yes}
	}
}

// View renders the dialog centered in the prompt's area.
func (p *ConfirmPrompt) View() string {
	if !p.visible {
		return ""
	}
	t := p.theme

	boxWidth := 50
	if p.width > 0 && p.width-4 < boxWidth {
		boxWidth = p.width - 4
	}
	if boxWidth < 24 {
		boxWidth = 24
	}

	no, yes := t.ConfirmButton, t.ConfirmButton
	if p.selected == ButtonYes {
		yes = t.ConfirmButtonActive
	} else {
		no = t.ConfirmButtonActive
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Center,
		no.Render("No"), "  ", yes.Render("Yes"))

	inner := boxWidth - 6
	content := lipgloss.JoinVertical(lipgloss.Left,
		t.ConfirmTitle.Render(p.title),
		"",
		lipgloss.NewStyle().Width(inner).Render(p.prompt),
		"",
		buttons,
		"",
		t.Muted.Render("y yes · n/esc no · ←/→ choose"),
	)
	box := t.ConfirmBox.Width(boxWidth).Render(content)

	if p.width > 0 && p.height > 0 {
		return lipgloss.Place(p.width, p.height, lipgloss.Center, lipgloss.Center, box)
	}
	return box
}
