// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is an opaque blob store for one session.
type Store interface {
	// Load returns the stored blob, or nil with a nil error when nothing has
	// been saved yet.
	Load() ([]byte, error)
	// Save replaces the stored blob.
	Save(blob []byte) error
	// Clear removes the stored blob. Clearing an empty store is not an error.
	Clear() error
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidSessionID indicates a session id that cannot be used as a key.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrDecryptionFailed indicates a sealed blob could not be opened.
	ErrDecryptionFailed = errors.New("decryption failed: wrong passphrase or tampered data")
	// ErrUnknownKind indicates an unsupported store kind.
	ErrUnknownKind = errors.New("unknown store kind")
)

// PersistenceError wraps a backend failure with the operation that failed.
type PersistenceError struct {
	Op      string // "load", "save", "clear", "open"
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func wrapErr(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Backend: backend, Err: err}
}

// =============================================================================
// OPEN
// =============================================================================

// Store kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Kind       string
	Dir        string // base directory for file and sqlite backends
	SessionID  string
	Passphrase string // when set the backend is wrapped in a SealedStore
}

// Open builds the store described by opts.
func Open(opts Options) (Store, error) {
	id, err := SanitizeSessionID(opts.SessionID)
	if err != nil {
		return nil, err
	}

	var store Store
	switch strings.ToLower(opts.Kind) {
	case "", KindFile:
		store, err = NewFileStore(filepath.Join(opts.Dir, "sessions"), id)
	case KindSQLite:
		store, err = NewSQLiteStore(filepath.Join(opts.Dir, "sessions.db"), id)
	case KindMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Kind)
	}
	if err != nil {
		return nil, err
	}

	if opts.Passphrase != "" {
		return NewSealedStore(store, opts.Passphrase), nil
	}
	return store, nil
}

// DefaultDir returns ~/.storyloom.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".storyloom"), nil
}

var sessionIDPattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeSessionID maps a user-supplied id onto a safe file and row key.
// SECURITY: Prevents path traversal through the session flag.
func SanitizeSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "default", nil
	}
	clean := sessionIDPattern.ReplaceAllString(id, "-")
	clean = strings.Trim(clean, ".-")
	if clean == "" || len(clean) > 128 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return clean, nil
}
