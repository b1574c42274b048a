// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/ui/styles"
	"github.com/jeranaias/storyloom/internal/util"
)

// minContentWidth keeps wrapping sane on very narrow terminals.
const minContentWidth = 20

// View draws frames with one theme at one width.
type View struct {
	Theme          *styles.Theme
	Width          int
	ShowTimestamps bool
}

func (v View) contentWidth(inset int) int {
	w := v.Width - inset
	if w < minContentWidth {
		return minContentWidth
	}
	return w
}

// =============================================================================
// STORY
// =============================================================================

// Story draws the turn groups in order.
func (v View) Story(f Frame) string {
	if len(f.Groups) == 0 {
		return v.Theme.EmptyStory.Render("The story has not started yet. Write the first line below.")
	}
	parts := make([]string, 0, len(f.Groups))
	for _, g := range f.Groups {
		parts = append(parts, v.group(g))
	}
	return strings.Join(parts, "\n")
}

func (v View) group(g Group) string {
	inner := v.contentWidth(4)
	lines := []string{v.Theme.AuthorLabel(g.Color).Render(g.Label)}

	for _, t := range g.Turns {
		style := v.Theme.TurnText
		if g.Author == model.AuthorThought {
			style = style.Italic(true)
		}
		if t.Editing {
			style = v.Theme.TurnEditing
		}

		body := style.Width(inner).Render(t.Content)
		switch {
		case t.Editing:
			body = v.Theme.TurnCursor.Render("✎ ") + body
		case t.Focused:
			body = v.Theme.TurnCursor.Render("▸ ") + body
		}
		lines = append(lines, body)

		var meta []string
		if v.ShowTimestamps && !t.Timestamp.IsZero() {
			meta = append(meta, v.Theme.Timestamp.Render(t.Timestamp.Local().Format("15:04")))
		}
		if t.AudioURL != "" {
			meta = append(meta, v.Theme.AudioLink.Render("♪ "+util.TruncateWidth(t.AudioURL, inner-2)))
		}
		if len(meta) > 0 {
			lines = append(lines, strings.Join(meta, "  "))
		}
	}
	return v.Theme.AuthorBubble(g.Color).Render(strings.Join(lines, "\n"))
}

// =============================================================================
// KEYWORDS
// =============================================================================

// Chips draws the keyword set, wrapping to the view width. cursor marks the
// chip under keyboard focus; -1 marks none.
func (v View) Chips(f Frame, cursor int) string {
	if len(f.Chips) == 0 {
		return ""
	}
	width := v.contentWidth(0)

	var (
		rows    []string
		row     string
		rowSize int
	)
	for i, chip := range f.Chips {
		style := v.Theme.Chip
		if chip.Selected {
			style = v.Theme.ChipSelected
		}
		if i == cursor {
			style = style.Inherit(v.Theme.ChipCursor)
		}
		rendered := style.Render(chipText(chip))
		size := lipgloss.Width(rendered)

		if rowSize > 0 && rowSize+1+size > width {
			rows = append(rows, row)
			row, rowSize = "", 0
		}
		if rowSize > 0 {
			row += " "
			rowSize++
		}
		row += rendered
		rowSize += size
	}
	rows = append(rows, row)
	return v.Theme.SectionHeader.Render("Keywords") + "\n" + strings.Join(rows, "\n")
}

func chipText(c Chip) string {
	mark := "○"
	if c.Selected {
		mark = "●"
	}
	if c.Category != "" {
		return fmt.Sprintf("%s %s · %s", mark, c.Text, c.Category)
	}
	return mark + " " + c.Text
}

// =============================================================================
// IMAGES
// =============================================================================

// Images draws up to limit image cards, newest first. limit <= 0 draws all.
func (v View) Images(f Frame, limit int) string {
	if len(f.Images) == 0 {
		return ""
	}
	cards := f.Images
	if limit > 0 && len(cards) > limit {
		cards = cards[:limit]
	}
	inner := v.contentWidth(4)

	parts := []string{v.Theme.SectionHeader.Render(fmt.Sprintf("Images (%d)", len(f.Images)))}
	for _, card := range cards {
		lines := []string{v.Theme.ImageURL.Render(util.TruncateWidth(card.URL, inner))}
		if card.Prompt != "" {
			lines = append(lines, v.Theme.ImagePrompt.Width(inner).Render(card.Prompt))
		}
		box := v.Theme.ImageCard
		if card.Focused {
			box = box.BorderForeground(v.Theme.Resolve(styles.Violet))
		}
		parts = append(parts, box.Render(strings.Join(lines, "\n")))
	}
	return strings.Join(parts, "\n")
}

// =============================================================================
// STATUS
// =============================================================================

// Status draws the single status line.
func (v View) Status(f Frame) string {
	s := f.Status
	t := v.Theme

	left := strings.Join([]string{
		t.StatusKey.Render("as ") + t.StatusValue.Render(s.Author),
		t.StatusKey.Render(fmt.Sprintf("%d turns", s.Turns)),
		t.StatusKey.Render(fmt.Sprintf("%d images", s.Images)),
		t.StatusKey.Render(fmt.Sprintf("%d/%d keywords", s.Selected, s.Keywords)),
		t.StatusKey.Render(s.ImageMode),
	}, t.Muted.Render(" · "))

	var busy []string
	if s.Submitting {
		busy = append(busy, "sending")
	}
	if s.Generating {
		busy = append(busy, "painting")
	}
	right := ""
	if len(busy) > 0 {
		right = t.StatusBusy.Render(strings.Join(busy, " + ") + "…")
	}

	width := v.contentWidth(2)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return t.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}
