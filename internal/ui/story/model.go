// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package story

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/controller"
	"github.com/jeranaias/storyloom/internal/render"
	"github.com/jeranaias/storyloom/internal/session"
	"github.com/jeranaias/storyloom/internal/ui/components"
	"github.com/jeranaias/storyloom/internal/ui/styles"
)

// =============================================================================
// PANES
// =============================================================================

// Pane is the part of the screen that receives keys.
type Pane int

const (
	PaneInput    Pane = iota // Composing the next turn
	PaneStory                // Moving between turns
	PaneKeywords             // Moving between keyword chips
	PaneImages               // Moving between image cards
	paneCount
)

func (p Pane) String() string {
	switch p {
	case PaneStory:
		return "story"
	case PaneKeywords:
		return "keywords"
	case PaneImages:
		return "images"
	default:
		return "input"
	}
}

// sidePanelMin is the terminal width at which images get their own column.
const sidePanelMin = 100

// sidePanelWidth is the width of that column.
const sidePanelWidth = 36

// =============================================================================
// STORY MODEL
// =============================================================================

// ImageStatus reports whether an illustration is being generated.
// *cadence.Scheduler implements it.
type ImageStatus interface {
	Generating() bool
}

// Options configures a Model.
type Options struct {
	Controller *controller.Controller
	Images     ImageStatus
	// Toasts should be the manager the controller's NoticeSink feeds.
	Toasts         *components.ToastManager
	Title          string
	ShowTimestamps bool
	Logger         *zap.Logger
}

// Model is the Bubble Tea model for the story screen.
type Model struct {
	ctrl      *controller.Controller
	images    ImageStatus
	projector *render.Projector
	log       *zap.Logger

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	editor   textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap
	toasts   *components.ToastManager
	confirm  *components.ConfirmPrompt

	// Navigation
	pane        Pane
	turnCursor  int
	chipCursor  int
	imageCursor int

	// Last projection
	frame  render.Frame
	snap   session.Snapshot
	editID string

	title          string
	showTimestamps bool
	quitting       bool
}

// New creates a story model following opts.Controller's session.
func New(opts Options) Model {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	toasts := opts.Toasts
	if toasts == nil {
		toasts = components.NewToastManager()
	}
	title := opts.Title
	if title == "" {
		title = "storyloom"
	}

	state := opts.Controller.State()
	theme := styles.NewTheme(state.Settings().Theme)

	ti := textinput.New()
	ti.Prompt = "› "
	ti.Placeholder = "Write the next line… (@name speaks, > narrates, * thinks)"
	ti.CharLimit = 4096
	ti.Focus()

	ed := textinput.New()
	ed.Prompt = "✎ "
	ed.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctrl:           opts.Controller,
		images:         opts.Images,
		projector:      render.NewProjector(state, nil),
		log:            log,
		theme:          theme,
		viewport:       viewport.New(80, 20),
		input:          ti,
		editor:         ed,
		spinner:        sp,
		help:           help.New(),
		keys:           DefaultKeyMap(),
		toasts:         toasts,
		confirm:        components.NewConfirmPrompt(theme),
		title:          title,
		showTimestamps: opts.ShowTimestamps,
	}
	m.applyTheme()
	m.refresh()
	return m
}

// Init starts the spinner and toast clocks.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, components.ToastTickCmd())
}

// Close stops following the session.
func (m Model) Close() {
	m.projector.Close()
}

// Pane returns the focused pane.
func (m Model) Pane() Pane {
	return m.pane
}

// Frame returns the last projected frame.
func (m Model) Frame() render.Frame {
	return m.frame
}

// Theme returns the active styles.
func (m Model) Theme() *styles.Theme {
	return m.theme
}

// ConfirmVisible reports whether a yes/no prompt is up.
func (m Model) ConfirmVisible() bool {
	return m.confirm.IsVisible()
}

func (m *Model) applyTheme() {
	t := m.theme
	m.input.PromptStyle = t.InputPrompt
	m.input.PlaceholderStyle = t.InputPlaceholder
	m.input.TextStyle = t.TurnText
	m.editor.PromptStyle = t.TurnCursor
	m.editor.TextStyle = t.TurnEditing
	m.spinner.Style = t.StatusBusy
	m.confirm.SetTheme(t)
}

// =============================================================================
// PROJECTION
// =============================================================================

// refresh pulls session changes and rebuilds the frame and viewport. It
// runs after every update.
func (m *Model) refresh() {
	changed := m.projector.Take()
	m.snap = m.projector.Snapshot()

	if mode := m.snap.Settings.Theme; mode.Valid() && mode != m.theme.Mode {
		m.theme = styles.NewTheme(mode)
		m.applyTheme()
	}
	m.clampCursors()

	// Leaving edit mode from the controller side (delete, clear) closes
	// the editor here too.
	if id := m.ctrl.Editing(); id != m.editID {
		m.editID = id
		if id == "" {
			m.editor.Blur()
			if m.pane == PaneInput {
				m.input.Focus()
			}
		}
	}

	generating := m.images != nil && m.images.Generating()
	m.frame = m.projector.Frame(render.Input{
		Editing:    m.editID,
		Focused:    m.focusedID(),
		Audio:      m.ctrl.AudioURLs(),
		Submitting: m.ctrl.Phase() == controller.PhaseSubmitting,
		Generating: generating,
	})

	if v := m.ctrl.Input(); v != m.input.Value() {
		m.input.SetValue(v)
		m.input.CursorEnd()
	}

	m.layout()
	follow := m.viewport.AtBottom()
	m.viewport.SetContent(m.storyContent())
	if changed.Has(session.ChangeTurns) && follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) clampCursors() {
	clamp := func(i, n int) int {
		if i >= n {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		return i
	}
	m.turnCursor = clamp(m.turnCursor, len(m.snap.Turns))
	m.chipCursor = clamp(m.chipCursor, len(m.snap.Keywords))
	m.imageCursor = clamp(m.imageCursor, len(m.snap.Images))
}

// focusedID is the turn or image under the cursor of the focused pane.
func (m *Model) focusedID() string {
	switch m.pane {
	case PaneStory:
		if len(m.snap.Turns) > 0 {
			return m.snap.Turns[m.turnCursor].ID
		}
	case PaneImages:
		// The cursor counts newest first.
		if n := len(m.snap.Images); n > 0 {
			return m.snap.Images[n-1-m.imageCursor].ID
		}
	}
	return ""
}

func (m *Model) focusedTurn() (string, bool) {
	if m.pane != PaneStory || len(m.snap.Turns) == 0 {
		return "", false
	}
	return m.snap.Turns[m.turnCursor].ID, true
}

func (m *Model) focusedImage() (string, bool) {
	if m.pane != PaneImages || len(m.snap.Images) == 0 {
		return "", false
	}
	return m.focusedID(), true
}
