// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/storage"
)

// DefaultCommandHistoryCap bounds the recall stack.
const DefaultCommandHistoryCap = 200

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// Change is a bitmask of the parts of the state a mutation touched.
type Change uint16

const (
	ChangeTurns Change = 1 << iota
	ChangeImages
	ChangeKeywords
	ChangeSelection
	ChangeSettings
	ChangeCommandHistory
	ChangeImageTime
	ChangeCleared
	ChangeHydrated

	// ChangeAll marks every region dirty.
	ChangeAll Change = ChangeTurns | ChangeImages | ChangeKeywords | ChangeSelection |
		ChangeSettings | ChangeCommandHistory | ChangeImageTime
)

// Has reports whether c includes any bit of other.
func (c Change) Has(other Change) bool {
	return c&other != 0
}

// Listener is called after a mutation with the parts that changed.
type Listener func(Change)

// =============================================================================
// STATE
// =============================================================================

// Options configures a State.
type Options struct {
	// Store persists the session; nil keeps the session in memory only.
	Store storage.Store
	// Logger receives persistence failures; nil discards them.
	Logger *zap.Logger
	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
	// CommandHistoryCap bounds the recall stack; 0 means DefaultCommandHistoryCap.
	CommandHistoryCap int
	// OnPersistError is told about save or clear failures, after logging.
	OnPersistError func(error)
}

// State is the session aggregate. All methods are safe for concurrent use.
type State struct {
	mu sync.Mutex

	turns          []model.Turn
	images         []model.GeneratedImage
	keywords       []model.Keyword
	selection      []string
	settings       model.Settings
	commandHistory []string
	lastImageAt    time.Time
	epoch          uint64

	store          storage.Store
	detached       bool
	log            *zap.Logger
	now            func() time.Time
	historyCap     int
	onPersistError func(error)

	listeners  map[int]Listener
	nextListen int
}

// New returns an empty State with default settings.
func New(opts Options) *State {
	s := &State{
		settings:       model.DefaultSettings(),
		store:          opts.Store,
		log:            opts.Logger,
		now:            opts.Now,
		historyCap:     opts.CommandHistoryCap,
		onPersistError: opts.OnPersistError,
		listeners:      make(map[int]Listener),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.historyCap <= 0 {
		s.historyCap = DefaultCommandHistoryCap
	}
	return s
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *State) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify runs listeners outside the lock so they can read the state.
func (s *State) notify(c Change) {
	if c == 0 {
		return
	}
	s.mu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for i := 0; i < s.nextListen; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Epoch returns the current session epoch.
func (s *State) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a copy of the state. Mutating it does not affect the State.
type Snapshot struct {
	Turns                 []model.Turn
	Images                []model.GeneratedImage
	Keywords              []model.Keyword
	Selection             []string
	Settings              model.Settings
	CommandHistory        []string
	LastImageGenerationAt time.Time
	Epoch                 uint64
}

// IsSelected reports whether text is in the selection.
func (snap Snapshot) IsSelected(text string) bool {
	for _, sel := range snap.Selection {
		if sel == text {
			return true
		}
	}
	return false
}

// SelectedKeywords returns selected texts still backed by a current keyword,
// in keyword order. Selections of vanished keywords are inert.
func (snap Snapshot) SelectedKeywords() []string {
	return effectiveSelection(snap.Keywords, snap.Selection)
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Turns:                 append([]model.Turn(nil), s.turns...),
		Images:                append([]model.GeneratedImage(nil), s.images...),
		Keywords:              append([]model.Keyword(nil), s.keywords...),
		Selection:             append([]string(nil), s.selection...),
		Settings:              s.settings,
		CommandHistory:        append([]string(nil), s.commandHistory...),
		LastImageGenerationAt: s.lastImageAt,
		Epoch:                 s.epoch,
	}
}

// Turns returns a copy of the conversation history.
func (s *State) Turns() []model.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Turn(nil), s.turns...)
}

// Turn returns the turn with id.
func (s *State) Turn(id string) (model.Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.turnIndex(id); i >= 0 {
		return s.turns[i], true
	}
	return model.Turn{}, false
}

// Images returns a copy of the image history.
func (s *State) Images() []model.GeneratedImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.GeneratedImage(nil), s.images...)
}

// Keywords returns a copy of the current keyword set.
func (s *State) Keywords() []model.Keyword {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Keyword(nil), s.keywords...)
}

// Selection returns the raw selection, including inert entries.
func (s *State) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selection...)
}

// SelectedKeywords returns the effective selection used for the next send.
func (s *State) SelectedKeywords() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return effectiveSelection(s.keywords, s.selection)
}

// Settings returns the current settings.
func (s *State) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// CommandHistory returns the recall stack, newest first.
func (s *State) CommandHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commandHistory...)
}

// LastImageGenerationAt returns when images were last generated.
func (s *State) LastImageGenerationAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImageAt
}

func effectiveSelection(keywords []model.Keyword, selection []string) []string {
	if len(selection) == 0 {
		return nil
	}
	chosen := make(map[string]bool, len(selection))
	for _, sel := range selection {
		chosen[sel] = true
	}
	var out []string
	for _, kw := range keywords {
		if chosen[kw.Text] {
			out = append(out, kw.Text)
		}
	}
	return out
}

func (s *State) turnIndex(id string) int {
	if strings.TrimSpace(id) == "" {
		return -1
	}
	for i, t := range s.turns {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) imageIndex(id string) int {
	if id == "" {
		return -1
	}
	for i, img := range s.images {
		if img.ID == id {
			return i
		}
	}
	return -1
}
