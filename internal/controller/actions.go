// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/remote"
)

// =============================================================================
// EDITING
// =============================================================================

// StartEditing puts turn id into edit mode, silently cancelling any other
// edit. It returns false if the turn does not exist.
func (c *Controller) StartEditing(id string) bool {
	if _, ok := c.state.Turn(id); !ok {
		return false
	}
	c.mu.Lock()
	c.editing = id
	c.mu.Unlock()
	return true
}

// Editing returns the id of the turn being edited, or "".
func (c *Controller) Editing() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing
}

// CommitEdit saves text as the new content of the edited turn. Blank text
// acts as CancelEdit. It returns whether the turn changed.
func (c *Controller) CommitEdit(id, text string) bool {
	c.mu.Lock()
	if c.editing == "" || c.editing != id {
		c.mu.Unlock()
		return false
	}
	c.editing = ""
	c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return false
	}
	return c.state.UpdateTurnContent(id, text)
}

// CancelEdit leaves edit mode without changes.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	c.editing = ""
	c.mu.Unlock()
}

// =============================================================================
// DELETION
// =============================================================================

// DeleteTurn removes a turn without confirmation.
func (c *Controller) DeleteTurn(id string) bool {
	if !c.state.DeleteTurn(id) {
		return false
	}
	c.mu.Lock()
	if c.editing == id {
		c.editing = ""
	}
	delete(c.audio, id)
	delete(c.audioPending, id)
	c.mu.Unlock()
	return true
}

// DeleteImage removes an image without confirmation.
func (c *Controller) DeleteImage(id string) bool {
	return c.state.DeleteImage(id)
}

// Clear empties the session without confirmation. A turn in flight is
// abandoned: the controller is idle at once and the late result is dropped.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.txn++
	c.phase = PhaseIdle
	c.input = ""
	c.editing = ""
	c.pending = nil
	c.recallIndex = -1
	c.recallDraft = ""
	c.audio = make(map[string]string)
	c.audioPending = make(map[string]bool)
	c.mu.Unlock()

	c.state.Clear()
	c.log.Info("session cleared")
}

// =============================================================================
// CONFIRMATION GATE
// =============================================================================

// ActionKind names a destructive action waiting for confirmation.
type ActionKind int

const (
	ActionDeleteTurn ActionKind = iota + 1
	ActionDeleteImage
	ActionClear
)

// PendingAction is a destructive action waiting for a yes or no.
type PendingAction struct {
	Kind     ActionKind
	TargetID string
	Prompt   string
}

// RequestDeleteTurn asks for confirmation before deleting turn id.
func (c *Controller) RequestDeleteTurn(id string) bool {
	t, ok := c.state.Turn(id)
	if !ok {
		return false
	}
	prompt := fmt.Sprintf("Delete %s's message %q?", t.Author.DisplayName(), t.Preview(40))
	return c.request(PendingAction{Kind: ActionDeleteTurn, TargetID: id, Prompt: prompt})
}

// RequestDeleteImage asks for confirmation before deleting image id.
func (c *Controller) RequestDeleteImage(id string) bool {
	found := false
	for _, img := range c.state.Images() {
		if img.ID == id {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	return c.request(PendingAction{Kind: ActionDeleteImage, TargetID: id, Prompt: "Delete this image?"})
}

// RequestClear asks for confirmation before clearing the session.
func (c *Controller) RequestClear() bool {
	return c.request(PendingAction{Kind: ActionClear, Prompt: "Clear the whole story? This cannot be undone."})
}

func (c *Controller) request(action PendingAction) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &action
	return true
}

// Pending returns the action awaiting confirmation.
func (c *Controller) Pending() (PendingAction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingAction{}, false
	}
	return *c.pending, true
}

// Confirm resolves the pending action. With yes it is carried out; either
// way the gate closes. It reports whether anything was changed.
func (c *Controller) Confirm(yes bool) bool {
	c.mu.Lock()
	action := c.pending
	c.pending = nil
	c.mu.Unlock()

	if action == nil || !yes {
		return false
	}
	switch action.Kind {
	case ActionDeleteTurn:
		return c.DeleteTurn(action.TargetID)
	case ActionDeleteImage:
		return c.DeleteImage(action.TargetID)
	case ActionClear:
		c.Clear()
		return true
	}
	return false
}

// =============================================================================
// COMMAND HISTORY RECALL
// =============================================================================

// RecallOlder replaces the input with the next older history entry. The
// text being composed is kept and comes back when recall walks past the
// newest entry.
func (c *Controller) RecallOlder() bool {
	history := c.state.CommandHistory()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recallIndex+1 >= len(history) {
		return false
	}
	if c.recallIndex == -1 {
		c.recallDraft = c.input
	}
	c.recallIndex++
	c.input = history[c.recallIndex]
	return true
}

// RecallNewer walks back toward the text being composed.
func (c *Controller) RecallNewer() bool {
	history := c.state.CommandHistory()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recallIndex < 0 {
		return false
	}
	c.recallIndex--
	if c.recallIndex < 0 || c.recallIndex >= len(history) {
		c.recallIndex = -1
		c.input = c.recallDraft
		c.recallDraft = ""
		return true
	}
	c.input = history[c.recallIndex]
	return true
}

// =============================================================================
// KEYWORDS AND SETTINGS
// =============================================================================

// ToggleKeyword flips keyword text in the selection and reports whether it
// is now selected.
func (c *Controller) ToggleKeyword(text string) bool {
	return c.state.ToggleKeywordSelection(text)
}

// UpdateSettings applies patch. The image cadence follows the settings
// change through its session subscription.
func (c *Controller) UpdateSettings(patch model.SettingsPatch) model.Settings {
	return c.state.UpdateSettings(patch)
}

// SelectAuthor sets the author used for input without a prefix.
func (c *Controller) SelectAuthor(author model.Author) {
	c.state.UpdateSettings(model.SettingsPatch{SelectedAuthor: model.Ptr(author)})
}

// ToggleTheme flips between the dark and light themes.
func (c *Controller) ToggleTheme() model.Theme {
	next := c.state.Settings().Theme.Toggle()
	return c.state.UpdateSettings(model.SettingsPatch{Theme: model.Ptr(next)}).Theme
}

// =============================================================================
// PUSH EVENTS
// =============================================================================

// ApplyEvent applies a backend push the way the matching response would be
// applied.
func (c *Controller) ApplyEvent(ev remote.Event) {
	switch ev.Type {
	case remote.EventMessages, remote.EventKeywords:
		if ev.Chat != nil {
			c.applyChat(ev.Chat, ev.ReplaceKeywords)
		}
	case remote.EventImages:
		if ev.Image == nil {
			return
		}
		now := c.clock()
		if n := c.state.AppendImages(model.ImagesFromURLs(ev.Image.URLs, ev.Image.Prompt, now)); n > 0 {
			c.state.SetLastImageGenerationAt(now)
		}
	default:
		c.log.Debug("event ignored", zap.String("type", ev.Type))
	}
}
