// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// sealedMagic prefixes every sealed blob: magic | salt | nonce | ciphertext+tag
var sealedMagic = []byte("SLSEAL1\x00")

const (
	sealedSaltSize  = 16
	sealedNonceSize = 12
	sealedKeySize   = 32

	// DefaultSealIterations matches the OWASP 2023 floor for PBKDF2-SHA-256.
	DefaultSealIterations = 600000
)

// =============================================================================
// SEALED STORE
// =============================================================================

// SealedStore encrypts blobs with AES-256-GCM before handing them to the
// inner store. The key is derived once per salt with PBKDF2-SHA-256 and
// cached, since the session saves on every mutation.
type SealedStore struct {
	inner      Store
	passphrase []byte
	iterations int

	mu   sync.Mutex
	salt []byte
	aead cipher.AEAD
}

// NewSealedStore wraps inner with passphrase-based encryption.
func NewSealedStore(inner Store, passphrase string) *SealedStore {
	return NewSealedStoreWithIterations(inner, passphrase, DefaultSealIterations)
}

// NewSealedStoreWithIterations is NewSealedStore with an explicit PBKDF2 cost.
func NewSealedStoreWithIterations(inner Store, passphrase string, iterations int) *SealedStore {
	if iterations <= 0 {
		iterations = DefaultSealIterations
	}
	return &SealedStore{
		inner:      inner,
		passphrase: []byte(passphrase),
		iterations: iterations,
	}
}

// Unwrap returns the store holding the sealed blobs.
func (s *SealedStore) Unwrap() Store {
	return s.inner
}

// Load opens the sealed blob. A blob without the sealed header is returned
// unchanged so an unencrypted session can be adopted.
func (s *SealedStore) Load() ([]byte, error) {
	blob, err := s.inner.Load()
	if err != nil || blob == nil {
		return blob, err
	}
	if !bytes.HasPrefix(blob, sealedMagic) {
		return blob, nil
	}

	rest := blob[len(sealedMagic):]
	if len(rest) < sealedSaltSize+sealedNonceSize {
		return nil, wrapErr("sealed", "load", ErrDecryptionFailed)
	}
	salt := rest[:sealedSaltSize]
	nonce := rest[sealedSaltSize : sealedSaltSize+sealedNonceSize]
	ciphertext := rest[sealedSaltSize+sealedNonceSize:]

	s.mu.Lock()
	defer s.mu.Unlock()

	aead, err := s.cipherFor(salt)
	if err != nil {
		return nil, wrapErr("sealed", "load", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, sealedMagic)
	if err != nil {
		return nil, wrapErr("sealed", "load", ErrDecryptionFailed)
	}
	return plain, nil
}

// Save seals blob with a fresh nonce and stores it.
func (s *SealedStore) Save(blob []byte) error {
	s.mu.Lock()
	if s.salt == nil {
		salt := make([]byte, sealedSaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			s.mu.Unlock()
			return wrapErr("sealed", "save", fmt.Errorf("failed to generate salt: %w", err))
		}
		if _, err := s.cipherFor(salt); err != nil {
			s.mu.Unlock()
			return wrapErr("sealed", "save", err)
		}
	}
	salt, aead := s.salt, s.aead
	s.mu.Unlock()

	// SECURITY: Random nonce per save; never reuse a nonce under one key
	nonce := make([]byte, sealedNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return wrapErr("sealed", "save", fmt.Errorf("failed to generate nonce: %w", err))
	}

	out := make([]byte, 0, len(sealedMagic)+len(salt)+len(nonce)+len(blob)+aead.Overhead())
	out = append(out, sealedMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, blob, sealedMagic)

	return s.inner.Save(out)
}

// Clear clears the inner store and forgets the derived key.
func (s *SealedStore) Clear() error {
	s.mu.Lock()
	s.salt = nil
	s.aead = nil
	s.mu.Unlock()
	return s.inner.Clear()
}

// cipherFor returns the AEAD for salt, deriving and caching it when the salt
// differs from the cached one. Callers hold s.mu.
func (s *SealedStore) cipherFor(salt []byte) (cipher.AEAD, error) {
	if s.aead != nil && bytes.Equal(salt, s.salt) {
		return s.aead, nil
	}

	key := pbkdf2.Key(s.passphrase, salt, s.iterations, sealedKeySize, sha256.New)
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	s.salt = append([]byte(nil), salt...)
	s.aead = aead
	return aead, nil
}

// SECURITY: Zero key material once the cipher holds its own copy.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
