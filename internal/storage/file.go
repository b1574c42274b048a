// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/storyloom/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one session blob in <dir>/<id>.json.
type FileStore struct {
	dir  string
	id   string
	path string

	mu       sync.Mutex
	lastHash string // hash of the last blob we wrote or read
}

// NewFileStore creates the directory if needed and returns a store for id.
func NewFileStore(dir, id string) (*FileStore, error) {
	id, err := SanitizeSessionID(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, wrapErr("file", "open", err)
	}
	return &FileStore{
		dir:  dir,
		id:   id,
		path: filepath.Join(dir, id+".json"),
	}, nil
}

// Path returns the file backing this store.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the session file. A missing file is an empty store.
func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, wrapErr("file", "load", err)
	}

	s.mu.Lock()
	s.lastHash = util.ContentHash(data)
	s.mu.Unlock()
	return data, nil
}

// Save writes the blob atomically with owner-only permissions.
func (s *FileStore) Save(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// RELIABILITY: Atomic write with fsync prevents a torn session file
	if err := util.AtomicWriteFile(s.path, blob, 0600); err != nil {
		return wrapErr("file", "save", err)
	}
	s.lastHash = util.ContentHash(blob)
	return nil
}

// Clear removes the session file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrapErr("file", "clear", err)
	}
	s.lastHash = ""
	return nil
}

// =============================================================================
// EXTERNAL CHANGE WATCH
// =============================================================================

// Watch reports edits to the session file made by someone other than this
// store, such as a second storyloom process on the same session. Bursts of
// events within debounce are collapsed. onChange runs on the watcher
// goroutine. The returned function stops watching.
func (s *FileStore) Watch(ctx context.Context, debounce time.Duration, onChange func(blob []byte)) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the file inode.
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					s.checkExternal(onChange)
				})

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	stop := func() error {
		cancel()
		err := watcher.Close()
		<-done
		return err
	}
	return stop, nil
}

// checkExternal re-reads the file and calls onChange when its content differs
// from what this store last saw.
func (s *FileStore) checkExternal(onChange func([]byte)) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	hash := util.ContentHash(data)

	s.mu.Lock()
	own := hash == s.lastHash
	if !own {
		s.lastHash = hash
	}
	s.mu.Unlock()

	if !own {
		onChange(data)
	}
}
