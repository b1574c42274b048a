// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package story

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/storyloom/internal/controller"
	"github.com/jeranaias/storyloom/internal/ui/components"
)

// DispatchMsg carries a function to run on the update loop.
type DispatchMsg func()

// Bridge hands work from background goroutines to a running program.
// The controller and scheduler are built before the program exists, so they
// get b.Dispatch and the program is attached later.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
	closed  bool
}

// NewBridge returns an unattached bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes later dispatches to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.program = p
}

// Close drops every later dispatch.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.program = nil
}

// Dispatch runs fn on the program's update loop. Before Attach it runs fn
// directly; after Close it drops fn. It must not be called from inside
// Update, since Program.Send blocks until the loop reads it.
func (b *Bridge) Dispatch(fn func()) {
	b.mu.Lock()
	p, closed := b.program, b.closed
	b.mu.Unlock()

	switch {
	case closed:
		return
	case p == nil:
		fn()
	default:
		p.Send(DispatchMsg(fn))
	}
}

// NoticeSink adapts controller notices to toasts.
func NoticeSink(toasts *components.ToastManager) func(controller.Notice) {
	return func(n controller.Notice) {
		kind := components.ToastKindStatus
		switch n.Level {
		case controller.NoticeWarning:
			kind = components.ToastKindWarning
		case controller.NoticeError:
			kind = components.ToastKindError
		}
		toasts.Add(kind, n.Text)
	}
}
