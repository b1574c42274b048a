// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/model"
)

// mutate runs fn under the lock. When fn reports a change the state is
// persisted before unlocking and listeners are notified after.
func (s *State) mutate(fn func() Change) Change {
	var err error
	s.mu.Lock()
	changed := fn()
	if changed != 0 {
		err = s.persistLocked()
	}
	s.mu.Unlock()

	s.reportPersistError(err)
	s.notify(changed)
	return changed
}

// =============================================================================
// TURNS
// =============================================================================

// AddOrReplaceTurn upserts turn by ID. A new ID is appended; an existing ID
// is replaced in place. A turn without an ID is ignored.
func (s *State) AddOrReplaceTurn(turn model.Turn) {
	if strings.TrimSpace(turn.ID) == "" {
		return
	}
	s.mutate(func() Change {
		s.upsertLocked(turn)
		return ChangeTurns
	})
}

// UpsertTurns applies AddOrReplaceTurn to each turn with a single persist.
// It returns how many turns were accepted.
func (s *State) UpsertTurns(turns []model.Turn) int {
	accepted := 0
	s.mutate(func() Change {
		for _, t := range turns {
			if strings.TrimSpace(t.ID) == "" {
				continue
			}
			s.upsertLocked(t)
			accepted++
		}
		if accepted == 0 {
			return 0
		}
		return ChangeTurns
	})
	return accepted
}

func (s *State) upsertLocked(turn model.Turn) {
	if i := s.turnIndex(turn.ID); i >= 0 {
		s.turns[i] = turn
		return
	}
	s.turns = append(s.turns, turn)
}

// UpdateTurnContent replaces the content of turn id. Blank content is a
// cancel, not a delete, and leaves the turn untouched.
func (s *State) UpdateTurnContent(id, content string) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}
	changed := s.mutate(func() Change {
		i := s.turnIndex(id)
		if i < 0 || s.turns[i].Content == content {
			return 0
		}
		s.turns[i].Content = content
		return ChangeTurns
	})
	return changed != 0
}

// DeleteTurn removes turn id. Unknown ids are ignored.
func (s *State) DeleteTurn(id string) bool {
	changed := s.mutate(func() Change {
		i := s.turnIndex(id)
		if i < 0 {
			return 0
		}
		s.turns = append(s.turns[:i:i], s.turns[i+1:]...)
		return ChangeTurns
	})
	return changed != 0
}

// =============================================================================
// IMAGES
// =============================================================================

// AppendImage appends image to the history. Images are never upserted.
func (s *State) AppendImage(image model.GeneratedImage) {
	s.AppendImages([]model.GeneratedImage{image})
}

// AppendImages appends every image with a URL, assigning missing IDs.
func (s *State) AppendImages(images []model.GeneratedImage) int {
	added := 0
	s.mutate(func() Change {
		now := s.now()
		for _, img := range images {
			if strings.TrimSpace(img.URL) == "" {
				continue
			}
			if img.ID == "" {
				img.ID = model.NewID()
			}
			if img.Timestamp.IsZero() {
				img.Timestamp = now
			}
			s.images = append(s.images, img)
			added++
		}
		if added == 0 {
			return 0
		}
		return ChangeImages
	})
	return added
}

// DeleteImage removes image id. Unknown ids are ignored.
func (s *State) DeleteImage(id string) bool {
	changed := s.mutate(func() Change {
		i := s.imageIndex(id)
		if i < 0 {
			return 0
		}
		s.images = append(s.images[:i:i], s.images[i+1:]...)
		return ChangeImages
	})
	return changed != 0
}

// SetLastImageGenerationAt records when images were last produced.
func (s *State) SetLastImageGenerationAt(at time.Time) {
	s.mutate(func() Change {
		s.lastImageAt = at
		return ChangeImageTime
	})
}

// =============================================================================
// KEYWORDS AND SELECTION
// =============================================================================

// ReplaceKeywords swaps in a new keyword set wholesale. Entries are
// normalized, blank texts dropped and duplicate texts collapsed to the first.
// The selection is kept as is; entries whose keyword vanished become inert.
func (s *State) ReplaceKeywords(keywords []model.Keyword) {
	s.mutate(func() Change {
		seen := make(map[string]bool, len(keywords))
		next := make([]model.Keyword, 0, len(keywords))
		for _, kw := range keywords {
			kw = kw.Normalize()
			if kw.Text == "" || seen[kw.Text] {
				continue
			}
			seen[kw.Text] = true
			next = append(next, kw)
		}
		s.keywords = next
		return ChangeKeywords | ChangeSelection
	})
}

// ToggleKeywordSelection adds text to the selection, or removes it when it is
// already selected.
func (s *State) ToggleKeywordSelection(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	selected := false
	s.mutate(func() Change {
		for i, sel := range s.selection {
			if sel == text {
				s.selection = append(s.selection[:i:i], s.selection[i+1:]...)
				return ChangeSelection
			}
		}
		s.selection = append(s.selection, text)
		selected = true
		return ChangeSelection
	})
	return selected
}

// ClearSelection empties the selection and returns the effective selection
// it held.
func (s *State) ClearSelection() []string {
	var taken []string
	s.mutate(func() Change {
		taken = effectiveSelection(s.keywords, s.selection)
		if len(s.selection) == 0 {
			return 0
		}
		s.selection = nil
		return ChangeSelection
	})
	return taken
}

// =============================================================================
// COMMAND HISTORY
// =============================================================================

// PushCommandHistory prepends raw to the recall stack. Blank input is not
// recorded, nor is a repeat of the newest entry.
func (s *State) PushCommandHistory(raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	s.mutate(func() Change {
		if len(s.commandHistory) > 0 && s.commandHistory[0] == raw {
			return 0
		}
		s.commandHistory = append([]string{raw}, s.commandHistory...)
		if len(s.commandHistory) > s.historyCap {
			s.commandHistory = s.commandHistory[:s.historyCap]
		}
		return ChangeCommandHistory
	})
}

// =============================================================================
// SETTINGS
// =============================================================================

// UpdateSettings shallow-merges patch. The interval is clamped to the floor;
// an invalid mode or theme keeps the previous value. It returns the
// resulting settings.
func (s *State) UpdateSettings(patch model.SettingsPatch) model.Settings {
	var result model.Settings
	s.mutate(func() Change {
		next, changed := patch.Apply(s.settings)
		s.settings = next
		result = next
		if !changed {
			return 0
		}
		return ChangeSettings
	})
	return result
}

// =============================================================================
// CLEAR
// =============================================================================

// Clear resets the session to empty, keeping the theme and selected author,
// purges the persisted blob and starts a new epoch.
func (s *State) Clear() {
	s.mu.Lock()
	theme, author := s.settings.Theme, s.settings.SelectedAuthor
	s.turns = nil
	s.images = nil
	s.keywords = nil
	s.selection = nil
	s.commandHistory = nil
	s.lastImageAt = time.Time{}
	s.settings = model.DefaultSettings()
	s.settings.Theme = theme
	s.settings.SelectedAuthor = author
	s.epoch++
	var err error
	if s.store != nil && !s.detached {
		if err = s.store.Clear(); err != nil {
			s.log.Warn("session persistence failed", zap.String("op", "clear"), zap.Error(err))
		}
	}
	s.mu.Unlock()

	s.reportPersistError(err)
	s.notify(ChangeAll | ChangeCleared)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persistLocked saves the serialized state. Failures are logged and the
// session carries on in memory until the next successful save.
func (s *State) persistLocked() error {
	if s.store == nil || s.detached {
		return nil
	}
	blob, err := s.serializeLocked()
	if err == nil {
		err = s.store.Save(blob)
	}
	if err != nil {
		s.log.Warn("session persistence failed", zap.String("op", "save"), zap.Error(err))
	}
	return err
}

func (s *State) reportPersistError(err error) {
	if err != nil && s.onPersistError != nil {
		s.onPersistError(err)
	}
}
