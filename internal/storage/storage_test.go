// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behavior every Store must share.
func storeContract(t *testing.T, store Store) {
	t.Helper()

	blob, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, blob, "empty store should load nil")

	require.NoError(t, store.Save([]byte(`{"turns":[]}`)))
	blob, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, `{"turns":[]}`, string(blob))

	require.NoError(t, store.Save([]byte(`{"turns":[1]}`)))
	blob, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, `{"turns":[1]}`, string(blob))

	require.NoError(t, store.Clear())
	blob, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, store.Clear(), "clearing an empty store is not an error")
}

// =============================================================================
// BACKEND TESTS
// =============================================================================

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_CopiesBlob(t *testing.T) {
	store := NewMemoryStore()
	blob := []byte("abc")
	require.NoError(t, store.Save(blob))
	blob[0] = 'z'

	got, _ := store.Load()
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, store.Saves())
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "story one")
	require.NoError(t, err)
	storeContract(t, store)
	assert.Equal(t, "story-one.json", filepath.Base(store.Path()))
}

func TestFileStore_Permissions(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "perm")
	require.NoError(t, err)
	require.NoError(t, store.Save([]byte("{}")))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), "default")
	require.NoError(t, err)
	defer store.Close()
	storeContract(t, store)
}

func TestSQLiteStore_SessionsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	a, err := NewSQLiteStore(path, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteStore(path, "b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Save([]byte("from a")))
	got, err := b.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	ids, err := a.Sessions()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestSealedStore(t *testing.T) {
	storeContract(t, NewSealedStoreWithIterations(NewMemoryStore(), "hunter2", 1000))
}

func TestSealedStore_CiphertextAtRest(t *testing.T) {
	inner := NewMemoryStore()
	sealed := NewSealedStoreWithIterations(inner, "hunter2", 1000)
	require.NoError(t, sealed.Save([]byte("the dragon sleeps")))

	raw, _ := inner.Load()
	assert.True(t, bytes.HasPrefix(raw, sealedMagic))
	assert.NotContains(t, string(raw), "dragon")

	// A fresh store with the same passphrase derives the same key.
	reopened := NewSealedStoreWithIterations(inner, "hunter2", 1000)
	plain, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, "the dragon sleeps", string(plain))
}

func TestSealedStore_WrongPassphrase(t *testing.T) {
	inner := NewMemoryStore()
	require.NoError(t, NewSealedStoreWithIterations(inner, "right", 1000).Save([]byte("secret")))

	_, err := NewSealedStoreWithIterations(inner, "wrong", 1000).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecryptionFailed))

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "load", pe.Op)
}

func TestSealedStore_AdoptsPlainBlob(t *testing.T) {
	inner := NewMemoryStore()
	require.NoError(t, inner.Save([]byte(`{"plain":true}`)))

	got, err := NewSealedStoreWithIterations(inner, "pw", 1000).Load()
	require.NoError(t, err)
	assert.Equal(t, `{"plain":true}`, string(got))
}

// =============================================================================
// OPEN AND ID TESTS
// =============================================================================

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	for _, kind := range []string{KindFile, KindSQLite, KindMemory} {
		t.Run(kind, func(t *testing.T) {
			store, err := Open(Options{Kind: kind, Dir: dir, SessionID: "s1"})
			require.NoError(t, err)
			require.NoError(t, store.Save([]byte("x")))
			if c, ok := store.(interface{ Close() error }); ok {
				c.Close()
			}
		})
	}

	_, err := Open(Options{Kind: "redis", Dir: dir})
	assert.ErrorIs(t, err, ErrUnknownKind)

	store, err := Open(Options{Kind: KindMemory, Passphrase: "pw"})
	require.NoError(t, err)
	_, ok := store.(*SealedStore)
	assert.True(t, ok, "passphrase should wrap the store")
}

func TestSanitizeSessionID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "default", false},
		{"campaign-1", "campaign-1", false},
		{"../../etc/passwd", "etc-passwd", false},
		{"my story", "my-story", false},
		{"...", "", true},
	}
	for _, tc := range tests {
		got, err := SanitizeSessionID(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidSessionID, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

// =============================================================================
// WATCH TESTS
// =============================================================================

func TestFileStore_WatchIgnoresOwnWrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "watched")
	require.NoError(t, err)

	changes := make(chan []byte, 4)
	stop, err := store.Watch(context.Background(), 50*time.Millisecond, func(blob []byte) {
		changes <- blob
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, store.Save([]byte(`{"own":true}`)))

	select {
	case blob := <-changes:
		t.Fatalf("own write reported as external: %s", blob)
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"other":true}`), 0600))

	select {
	case blob := <-changes:
		assert.Equal(t, `{"other":true}`, string(blob))
	case <-time.After(3 * time.Second):
		t.Fatal("external write not reported")
	}
}

func TestSealedStore_Unwrap(t *testing.T) {
	inner := NewMemoryStore()
	sealed := NewSealedStoreWithIterations(inner, "pw", 1000)
	assert.Same(t, inner, sealed.Unwrap())
}
