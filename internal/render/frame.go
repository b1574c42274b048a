// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/session"
	"github.com/jeranaias/storyloom/internal/ui/styles"
)

// =============================================================================
// FRAME
// =============================================================================

// Input is everything a frame is built from.
type Input struct {
	Snapshot session.Snapshot
	// Editing is the id of the turn in edit mode.
	Editing string
	// Focused is the id of the turn or image under keyboard focus.
	Focused string
	// Audio maps turn ids to synthesized audio URLs.
	Audio      map[string]string
	Submitting bool
	Generating bool
}

// Frame is the visual structure of one session state.
type Frame struct {
	Groups []Group
	Chips  []Chip
	Images []ImageCard
	Status Status
}

// Group is a run of consecutive turns by one author.
type Group struct {
	Author model.Author
	Label  string
	// Color is an index into the author palette; -1 is the narrator.
	Color int
	Turns []TurnView
}

// TurnView is one turn inside a group.
type TurnView struct {
	ID        string
	Content   string
	Timestamp time.Time
	Editing   bool
	Focused   bool
	AudioURL  string
}

// Chip is one keyword.
type Chip struct {
	Text     string
	Category model.Category
	Weight   float64
	Selected bool
}

// ImageCard is one generated image.
type ImageCard struct {
	ID        string
	URL       string
	Prompt    string
	Timestamp time.Time
	Focused   bool
}

// Status summarizes the session for the status line.
type Status struct {
	Turns       int
	Images      int
	Keywords    int
	Selected    int
	Author      string
	ImageMode   string
	Theme       model.Theme
	Submitting  bool
	Generating  bool
	LastImageAt time.Time
}

// Build projects in into a Frame. It has no side effects.
func Build(in Input) Frame {
	snap := in.Snapshot
	f := Frame{
		Groups: buildGroups(snap.Turns, in.Editing, in.Focused, in.Audio),
		Chips:  make([]Chip, 0, len(snap.Keywords)),
		Images: make([]ImageCard, 0, len(snap.Images)),
	}

	for _, kw := range snap.Keywords {
		f.Chips = append(f.Chips, Chip{
			Text:     kw.Text,
			Category: kw.Category,
			Weight:   kw.Weight,
			Selected: snap.IsSelected(kw.Text),
		})
	}

	// Newest first.
	for i := len(snap.Images) - 1; i >= 0; i-- {
		img := snap.Images[i]
		f.Images = append(f.Images, ImageCard{
			ID:        img.ID,
			URL:       img.URL,
			Prompt:    img.Prompt,
			Timestamp: img.Timestamp,
			Focused:   in.Focused != "" && img.ID == in.Focused,
		})
	}

	f.Status = Status{
		Turns:       len(snap.Turns),
		Images:      len(snap.Images),
		Keywords:    len(snap.Keywords),
		Selected:    len(snap.SelectedKeywords()),
		Author:      AuthorLabel(snap.Settings.SelectedAuthor),
		ImageMode:   imageModeLabel(snap.Settings.ImageGeneration),
		Theme:       snap.Settings.Theme,
		Submitting:  in.Submitting,
		Generating:  in.Generating,
		LastImageAt: snap.LastImageGenerationAt,
	}
	return f
}

func buildGroups(turns []model.Turn, editing, focused string, audio map[string]string) []Group {
	var groups []Group
	for _, t := range turns {
		view := TurnView{
			ID:        t.ID,
			Content:   t.Content,
			Timestamp: t.Timestamp,
			Editing:   editing != "" && t.ID == editing,
			Focused:   focused != "" && t.ID == focused,
			AudioURL:  audio[t.ID],
		}
		if n := len(groups); n > 0 && groups[n-1].Author == t.Author {
			groups[n-1].Turns = append(groups[n-1].Turns, view)
			continue
		}
		groups = append(groups, Group{
			Author: t.Author,
			Label:  AuthorLabel(t.Author),
			Color:  AuthorColor(t.Author),
			Turns:  []TurnView{view},
		})
	}
	return groups
}

// =============================================================================
// AUTHORS
// =============================================================================

// AuthorColor returns the palette index for author, derived from an FNV-1a
// hash of the lowercased name. The narrator gets -1.
func AuthorColor(author model.Author) int {
	if author == model.AuthorNarrator {
		return -1
	}
	key := strings.ToLower(author.DisplayName())
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(styles.AuthorPalette)))
}

// AuthorLabel is the name shown above a group. All-lowercase character
// names are title-cased.
func AuthorLabel(author model.Author) string {
	name := author.DisplayName()
	if author.IsCharacter() && name == strings.ToLower(name) {
		return cases.Title(language.Und).String(name)
	}
	return name
}

func imageModeLabel(ig model.ImageGeneration) string {
	switch {
	case !ig.Enabled:
		return "images off"
	case ig.Mode == model.ModePeriodic:
		return fmt.Sprintf("images every %ds", model.ClampInterval(ig.IntervalSeconds))
	default:
		return "images after chat"
	}
}
