// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps session blobs as rows of one table, so many sessions
// share a single database file.
type SQLiteStore struct {
	db *sql.DB
	id string
}

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path, id string) (*SQLiteStore, error) {
	id, err := SanitizeSessionID(id)
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, wrapErr("sqlite", "open", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapErr("sqlite", "open", fmt.Errorf("failed to open database: %w", err))
	}
	// One writer; SQLite serializes anyway and this keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, wrapErr("sqlite", "open", fmt.Errorf("failed to set pragma: %w", err))
		}
	}
	if _, err := db.Exec(sessionsSchema); err != nil {
		db.Close()
		return nil, wrapErr("sqlite", "open", fmt.Errorf("failed to create schema: %w", err))
	}

	return &SQLiteStore{db: db, id: id}, nil
}

// Load returns the blob for this session, or nil when there is no row.
func (s *SQLiteStore) Load() ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT blob FROM sessions WHERE id = ?`, s.id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("sqlite", "load", err)
	}
	return blob, nil
}

// Save upserts the blob for this session.
func (s *SQLiteStore) Save(blob []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, blob, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		s.id, blob, time.Now().UnixMilli())
	return wrapErr("sqlite", "save", err)
}

// Clear deletes the row for this session.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, s.id)
	return wrapErr("sqlite", "clear", err)
}

// Sessions lists the ids stored in the database, most recently updated first.
func (s *SQLiteStore) Sessions() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, wrapErr("sqlite", "list", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("sqlite", "list", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr("sqlite", "list", rows.Err())
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
