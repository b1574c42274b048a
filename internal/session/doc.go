// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the authoritative in-memory story session.
//
// A State owns the ordered turns, the image history, the current keyword set,
// the keyword selection, the settings, the command-history stack and the time
// of the last image generation. Every mutation that must survive a reload
// serializes the state and saves it to the configured storage.Store before
// the method returns. Listeners registered with Subscribe are told which
// parts changed, after the lock is released, so they may call back into the
// State.
//
// # Key Types
//
//   - State: the session aggregate and its mutation methods
//   - Snapshot: an immutable copy of the state for rendering and requests
//   - Change: bitmask naming the parts a mutation touched
//
// # Usage
//
//	st := session.New(session.Options{Store: store, Logger: log})
//	st.Load() // hydrate from the store, falling back to defaults
//	unsubscribe := st.Subscribe(func(c session.Change) { ... })
//	st.AddOrReplaceTurn(model.NewTurn(model.AuthorNarrator, "It begins."))
//
// # Epochs
//
// Clear bumps Epoch. Work started against an older epoch (a chat request,
// an image generation) must drop its result when it completes.
package session
