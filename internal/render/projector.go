// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"sync"

	"github.com/jeranaias/storyloom/internal/session"
)

// Projector keeps the latest snapshot of a session and the set of regions
// that changed since the last Take.
type Projector struct {
	state *session.State

	mu      sync.Mutex
	snap    session.Snapshot
	version uint64 // bumped by every notification
	built   uint64 // version snap was taken at
	dirty   session.Change

	unsubscribe func()
	onChange    func(session.Change)
}

// NewProjector subscribes to state. onChange, if set, is called after every
// notification, on the mutating goroutine.
func NewProjector(state *session.State, onChange func(session.Change)) *Projector {
	p := &Projector{
		state:    state,
		snap:     state.Snapshot(),
		dirty:    session.ChangeAll,
		onChange: onChange,
	}
	p.unsubscribe = state.Subscribe(p.invalidate)
	return p
}

func (p *Projector) invalidate(c session.Change) {
	p.mu.Lock()
	p.version++
	p.dirty |= c
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(c)
	}
}

// Snapshot returns the cached snapshot, refreshing it if the session changed.
func (p *Projector) Snapshot() session.Snapshot {
	p.mu.Lock()
	version, built, snap := p.version, p.built, p.snap
	p.mu.Unlock()
	if version == built {
		return snap
	}

	// A notification racing this read leaves version ahead of built, so the
	// next call refreshes again.
	snap = p.state.Snapshot()
	p.mu.Lock()
	if version > p.built {
		p.snap = snap
		p.built = version
	}
	p.mu.Unlock()
	return snap
}

// Take returns the regions changed since the previous Take and resets them.
func (p *Projector) Take() session.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.dirty
	p.dirty = 0
	return c
}

// Frame builds a frame from the cached snapshot and the transient fields of
// in. in.Snapshot is ignored.
func (p *Projector) Frame(in Input) Frame {
	in.Snapshot = p.Snapshot()
	return Build(in)
}

// Close stops following the session.
func (p *Projector) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}
