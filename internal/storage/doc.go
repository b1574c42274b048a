// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists the session blob for storyloom.
//
// The session package treats persistence as an opaque blob store: it hands
// over serialized bytes and never assumes a storage technology. Every
// backend here implements Store.
//
// # Key Types
//
//   - Store: Load/Save/Clear of one session blob
//   - FileStore: one JSON file per session under ~/.storyloom/sessions/
//   - SQLiteStore: a sessions table in a pure-Go SQLite database
//   - MemoryStore: process-local, used for --store=memory and tests
//   - SealedStore: AES-256-GCM wrapper around any other Store
//   - PersistenceError: wraps every backend failure with the failing op
//
// # Usage
//
//	store, err := storage.Open(storage.Options{Kind: storage.KindFile, Dir: dir, SessionID: "default"})
//	blob, err := store.Load() // nil, nil when nothing is stored yet
//	err = store.Save(blob)
//
// FileStore can also watch its file for edits made by another process:
//
//	stop, err := fs.Watch(ctx, 200*time.Millisecond, func(blob []byte) { ... })
package storage
