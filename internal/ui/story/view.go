// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package story

import (
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/storyloom/internal/render"
	"github.com/jeranaias/storyloom/internal/ui/components"
)

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) sidePanel() bool {
	return m.width >= sidePanelMin
}

func (m *Model) storyWidth() int {
	if m.sidePanel() {
		return m.width - sidePanelWidth
	}
	return m.width
}

func (m *Model) renderer(width int) render.View {
	return render.View{Theme: m.theme, Width: width, ShowTimestamps: m.showTimestamps}
}

// layout sizes the viewport to whatever the fixed rows leave over.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}
	fixed := 1 + 2 + 1 // header, input, status
	if chips := m.chipsView(); chips != "" {
		fixed += lipgloss.Height(chips)
	}
	if toasts := m.toastView(); toasts != "" {
		fixed += lipgloss.Height(toasts)
	}
	fixed += lipgloss.Height(m.help.View(m.keys))

	h := m.height - fixed
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.storyWidth()
	m.viewport.Height = h
}

// storyContent is the scrollable part. Narrow terminals get the images
// below the story instead of beside it.
func (m *Model) storyContent() string {
	v := m.renderer(m.storyWidth() - 2)
	content := v.Story(m.frame)
	if !m.sidePanel() {
		if images := v.Images(m.frame, 0); images != "" {
			content += "\n" + images
		}
	}
	return content
}

func (m *Model) chipsView() string {
	cursor := -1
	if m.pane == PaneKeywords {
		cursor = m.chipCursor
	}
	return m.renderer(m.width).Chips(m.frame, cursor)
}

func (m *Model) toastView() string {
	return components.RenderToastStack(m.theme, m.toasts.Toasts(), time.Now(), m.width)
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading story…"
	}
	if m.confirm.IsVisible() {
		return m.confirm.View()
	}

	t := m.theme
	status := m.frame.Status

	header := t.HeaderTitle.Render(m.title) + " " + t.HeaderSubtitle.Render(m.pane.String())
	if status.Submitting || status.Generating {
		header += " " + m.spinner.View()
	}
	header = t.Header.Width(m.width).Render(header)

	body := m.viewport.View()
	if m.sidePanel() {
		limit := m.viewport.Height / 4
		if limit < 1 {
			limit = 1
		}
		side := lipgloss.NewStyle().
			Width(sidePanelWidth).
			MaxHeight(m.viewport.Height).
			Render(m.renderer(sidePanelWidth).Images(m.frame, limit))
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, side)
	}

	inputLine := m.input.View()
	if m.editID != "" {
		inputLine = m.editor.View()
	}

	rows := []string{header, body}
	for _, row := range []string{
		m.chipsView(),
		m.toastView(),
		t.InputContainer.Width(m.width).Render(inputLine),
		m.renderer(m.width).Status(m.frame),
		m.help.View(m.keys),
	} {
		if row != "" {
			rows = append(rows, row)
		}
	}
	return t.App.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
