// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package story

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/ui/components"
)

// Update handles messages and refreshes the projection afterwards.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.confirm.SetSize(msg.Width, msg.Height)

	case DispatchMsg:
		msg()

	case components.ConfirmResultMsg:
		m.ctrl.Confirm(msg.Yes)

	case components.ToastTickMsg:
		m.toasts.Tick()
		cmds = append(cmds, components.ToastTickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		m.snap = m.projector.Snapshot()
		m.clampCursors()
		if cmd, handled := m.confirm.Update(msg); handled {
			cmds = append(cmds, cmd)
			break
		}
		cmds = append(cmds, m.handleKey(msg))

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.quitting {
		m.projector.Close()
		return m, tea.Quit
	}
	m.refresh()
	return m, tea.Batch(cmds...)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return nil
	case key.Matches(msg, m.keys.GenerateImage):
		m.ctrl.GenerateImage()
		return nil
	case key.Matches(msg, m.keys.ToggleImages):
		enabled := !m.snap.Settings.ImageGeneration.Enabled
		m.ctrl.UpdateSettings(model.SettingsPatch{ImageEnabled: &enabled})
		return nil
	case key.Matches(msg, m.keys.CycleImageMode):
		mode := model.ModePeriodic
		if m.snap.Settings.ImageGeneration.Mode == model.ModePeriodic {
			mode = model.ModeAfterChat
		}
		m.ctrl.UpdateSettings(model.SettingsPatch{ImageMode: &mode})
		return nil
	case key.Matches(msg, m.keys.ToggleTheme):
		m.ctrl.ToggleTheme()
		return nil
	case key.Matches(msg, m.keys.Clear):
		m.ctrl.CancelEdit()
		if m.ctrl.RequestClear() {
			m.showPending("Clear story")
		}
		return nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil
	}

	if m.editID != "" {
		return m.handleEditKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.NextPane):
		m.setPane((m.pane + 1) % paneCount)
		return nil
	case key.Matches(msg, m.keys.PrevPane):
		m.setPane((m.pane - 1 + paneCount) % paneCount)
		return nil
	case key.Matches(msg, m.keys.Back):
		if m.toasts.Dismiss() {
			return nil
		}
		m.setPane(PaneInput)
		return nil
	}

	switch m.pane {
	case PaneStory:
		return m.handleStoryKey(msg)
	case PaneKeywords:
		return m.handleKeywordKey(msg)
	case PaneImages:
		return m.handleImageKey(msg)
	default:
		return m.handleInputKey(msg)
	}
}

func (m *Model) setPane(p Pane) {
	if p == PaneStory && m.pane != PaneStory {
		// Start at the newest turn.
		m.turnCursor = len(m.snap.Turns) - 1
	}
	m.pane = p
	if p == PaneInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) showPending(title string) {
	if p, ok := m.ctrl.Pending(); ok {
		m.confirm.Show(title, p.Prompt)
	}
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Submit):
		if !m.ctrl.Submit() {
			m.log.Debug("submit ignored", zap.Stringer("phase", m.ctrl.Phase()))
		}
		return nil
	case key.Matches(msg, m.keys.Up):
		m.ctrl.RecallOlder()
		return nil
	case key.Matches(msg, m.keys.Down):
		m.ctrl.RecallNewer()
		return nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != m.ctrl.Input() {
		m.ctrl.SetInput(v)
	}
	return cmd
}

func (m *Model) handleStoryKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.turnCursor > 0 {
			m.turnCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.turnCursor < len(m.snap.Turns)-1 {
			m.turnCursor++
		}
	case key.Matches(msg, m.keys.Edit):
		if id, ok := m.focusedTurn(); ok && m.ctrl.StartEditing(id) {
			turn, _ := m.ctrl.State().Turn(id)
			m.editID = id
			m.editor.SetValue(turn.Content)
			m.editor.CursorEnd()
			m.input.Blur()
			return m.editor.Focus()
		}
	case key.Matches(msg, m.keys.Delete):
		if id, ok := m.focusedTurn(); ok && m.ctrl.RequestDeleteTurn(id) {
			m.showPending("Delete message")
		}
	case key.Matches(msg, m.keys.Audio):
		if id, ok := m.focusedTurn(); ok && m.ctrl.SynthesizeAudio(id) {
			m.toasts.Add(components.ToastKindStatus, "Reading the turn aloud…")
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Model) handleKeywordKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Left):
		if m.chipCursor > 0 {
			m.chipCursor--
		}
	case key.Matches(msg, m.keys.Right):
		if m.chipCursor < len(m.snap.Keywords)-1 {
			m.chipCursor++
		}
	case key.Matches(msg, m.keys.Toggle):
		if len(m.snap.Keywords) > 0 {
			m.ctrl.ToggleKeyword(m.snap.Keywords[m.chipCursor].Text)
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Model) handleImageKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.imageCursor > 0 {
			m.imageCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.imageCursor < len(m.snap.Images)-1 {
			m.imageCursor++
		}
	case key.Matches(msg, m.keys.Delete):
		if id, ok := m.focusedImage(); ok && m.ctrl.RequestDeleteImage(id) {
			m.showPending("Delete image")
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

func (m *Model) handleEditKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Submit):
		m.ctrl.CommitEdit(m.editID, m.editor.Value())
		return nil
	case key.Matches(msg, m.keys.Back):
		m.ctrl.CancelEdit()
		return nil
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return cmd
}
