// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/remote"
	"github.com/jeranaias/storyloom/internal/session"
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Remote is the subset of the backend client the controller calls.
// *remote.Client implements it.
type Remote interface {
	Chat(ctx context.Context, req remote.ChatRequest) (*remote.ChatResponse, error)
	SynthesizeAudio(ctx context.Context, text string) (string, error)
}

// ImageTrigger starts illustrations. *cadence.Scheduler implements it.
type ImageTrigger interface {
	AfterChat() bool
	GenerateNow() bool
}

// =============================================================================
// NOTICES
// =============================================================================

// NoticeLevel grades a user-visible notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

// Notice is a transient, dismissible message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Phase is the state of the outgoing turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
)

func (p Phase) String() string {
	if p == PhaseSubmitting {
		return "submitting"
	}
	return "idle"
}

// Options configures a Controller.
type Options struct {
	State  *session.State
	Remote Remote
	// Images is told about successful chat turns; nil disables illustrations.
	Images ImageTrigger
	// Dispatch runs remote completions on the caller's event loop. nil runs
	// them on the request goroutine.
	Dispatch func(func())
	// OnNotice receives transient user-visible messages.
	OnNotice func(Notice)
	// OnAudio is told when a turn's audio URL arrives.
	OnAudio func(turnID, url string)
	// Timeout bounds one remote call; 0 leaves it to the client.
	Timeout time.Duration
	// Now stamps turns and images that arrive without a timestamp.
	Now    func() time.Time
	Logger *zap.Logger
}

// Controller mediates between user intents, the session and the backend.
// Its methods are safe for concurrent use but are meant to be called from a
// single UI loop.
type Controller struct {
	state    *session.State
	remote   Remote
	images   ImageTrigger
	dispatch func(func())
	spawn    func(func())
	onNotice func(Notice)
	onAudio  func(string, string)
	timeout  time.Duration
	clock    func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	phase   Phase
	txn     uint64
	input   string
	editing string
	pending *PendingAction

	recallIndex int
	recallDraft string

	audio        map[string]string
	audioPending map[string]bool
}

// New returns an idle controller.
func New(opts Options) *Controller {
	c := &Controller{
		state:        opts.State,
		remote:       opts.Remote,
		images:       opts.Images,
		dispatch:     opts.Dispatch,
		spawn:        func(f func()) { go f() },
		onNotice:     opts.OnNotice,
		onAudio:      opts.OnAudio,
		timeout:      opts.Timeout,
		clock:        opts.Now,
		log:          opts.Logger,
		recallIndex:  -1,
		audio:        make(map[string]string),
		audioPending: make(map[string]bool),
	}
	if c.dispatch == nil {
		c.dispatch = func(f func()) { f() }
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// State returns the session the controller mutates.
func (c *Controller) State() *session.State {
	return c.state
}

// Phase returns the state of the outgoing turn.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// =============================================================================
// INPUT BUFFER
// =============================================================================

// Input returns the text being composed.
func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the text being composed and leaves history recall.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
	c.recallIndex = -1
}

// CanSubmit reports whether Submit would send anything: the controller is
// idle and there is text or at least one selected keyword.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	idle, input := c.phase == PhaseIdle, c.input
	c.mu.Unlock()

	if !idle {
		return false
	}
	return strings.TrimSpace(input) != "" || len(c.state.SelectedKeywords()) > 0
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit sends the composed turn. It returns false without side effects when
// nothing can be sent or a turn is already in flight.
//
// The selection and the input buffer are cleared before the request leaves,
// so the UI shows the turn as sent immediately.
func (c *Controller) Submit() bool {
	if c.remote == nil || !c.CanSubmit() {
		return false
	}
	settings := c.state.Settings()

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return false
	}
	raw := c.input
	author, text := model.ParseAuthorPrefix(raw, settings.SelectedAuthor)
	if text == "" && len(c.state.SelectedKeywords()) == 0 {
		c.mu.Unlock()
		return false
	}
	c.phase = PhaseSubmitting
	c.txn++
	txn := c.txn
	c.input = ""
	c.recallIndex = -1
	c.recallDraft = ""
	c.mu.Unlock()

	selected := c.state.ClearSelection()
	epoch := c.state.Epoch()
	req := remote.ChatRequest{
		Message:          text,
		Author:           author,
		History:          c.state.Turns(),
		SelectedKeywords: selected,
	}
	c.state.PushCommandHistory(raw)

	c.log.Debug("chat submit",
		zap.Uint64("txn", txn),
		zap.String("author", author.String()),
		zap.Int("keywords", len(selected)))

	c.spawn(func() {
		ctx, cancel := c.callContext()
		defer cancel()
		resp, err := c.remote.Chat(ctx, req)
		c.dispatch(func() { c.completeChat(txn, epoch, raw, resp, err) })
	})
	return true
}

func (c *Controller) callContext() (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(context.Background(), c.timeout)
	}
	return context.WithCancel(context.Background())
}

// completeChat applies a chat result and returns to Idle. Results for a
// superseded transaction or a cleared session are dropped.
func (c *Controller) completeChat(txn, epoch uint64, raw string, resp *remote.ChatResponse, err error) {
	c.mu.Lock()
	if txn != c.txn {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseIdle
	c.mu.Unlock()

	if epoch != c.state.Epoch() {
		c.log.Debug("chat result dropped: session cleared", zap.Uint64("txn", txn))
		return
	}
	if err != nil {
		if errors.Is(err, remote.ErrNotTransmitted) {
			// Nothing reached the server, so the text is handed back.
			c.mu.Lock()
			if c.input == "" {
				c.input = raw
			}
			c.mu.Unlock()
		}
		c.log.Warn("chat failed", zap.Uint64("txn", txn), zap.Error(err))
		c.notify(NoticeError, remote.UserMessage(err))
		return
	}

	c.applyChat(resp, true)
	if c.images != nil {
		c.images.AfterChat()
	}
}

// applyChat upserts the returned turns and replaces the keyword set when
// the response carried one.
func (c *Controller) applyChat(resp *remote.ChatResponse, replaceKeywords bool) {
	now := c.clock()
	turns := make([]model.Turn, 0, len(resp.Messages))
	for _, t := range resp.Messages {
		turns = append(turns, t.WithDefaults(now))
	}
	c.state.UpsertTurns(turns)
	if replaceKeywords && resp.Keywords != nil {
		c.state.ReplaceKeywords(resp.Keywords)
	}
}

// GenerateImage asks for an illustration now, outside the cadence.
func (c *Controller) GenerateImage() bool {
	if c.images == nil {
		return false
	}
	if !c.images.GenerateNow() {
		c.notify(NoticeInfo, "An image is already being generated")
		return false
	}
	return true
}

func (c *Controller) notify(level NoticeLevel, text string) {
	if c.onNotice != nil && text != "" {
		c.onNotice(Notice{Level: level, Text: text})
	}
}
