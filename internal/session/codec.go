// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/model"
)

// blobVersion is written into every serialized session.
const blobVersion = 2

// =============================================================================
// SERIALIZED FORM
// =============================================================================

// blob is the persisted session. Field names match the sessions written by
// the browser client, so an exported appState can be imported as is.
type blob struct {
	Version             int                    `json:"version"`
	ChatHistory         []model.Turn           `json:"chatHistory"`
	ImageHistory        []model.GeneratedImage `json:"imageHistory"`
	Keywords            []model.Keyword        `json:"keywords"`
	SelectedKeywords    []string               `json:"selectedKeywords"`
	CommandHistory      []string               `json:"commandHistory"`
	LastImageGeneration int64                  `json:"lastImageGeneration"` // unix ms, 0 = never
	SelectedAuthor      model.Author           `json:"selectedAuthor"`
	Theme               model.Theme            `json:"theme"`
	ImageSettings       imageSettingsRecord    `json:"imageSettings"`
}

type imageSettingsRecord struct {
	Enabled         *bool  `json:"enabled,omitempty"`
	Mode            string `json:"mode,omitempty"`
	IntervalSeconds *int   `json:"interval_seconds,omitempty"`
	// Accepted on read only.
	IntervalSecondsCamel *int `json:"intervalSeconds,omitempty"`
}

// Serialize returns the persisted form of the session.
func (s *State) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serializeLocked()
}

func (s *State) serializeLocked() ([]byte, error) {
	enabled := s.settings.ImageGeneration.Enabled
	interval := s.settings.ImageGeneration.IntervalSeconds

	b := blob{
		Version:          blobVersion,
		ChatHistory:      nonNil(s.turns),
		ImageHistory:     nonNil(s.images),
		Keywords:         nonNil(s.keywords),
		SelectedKeywords: nonNil(s.selection),
		CommandHistory:   nonNil(s.commandHistory),
		SelectedAuthor:   s.settings.SelectedAuthor,
		Theme:            s.settings.Theme,
		ImageSettings: imageSettingsRecord{
			Enabled:         &enabled,
			Mode:            string(s.settings.ImageGeneration.Mode),
			IntervalSeconds: &interval,
		},
	}
	if !s.lastImageAt.IsZero() {
		b.LastImageGeneration = s.lastImageAt.UnixMilli()
	}

	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

// =============================================================================
// HYDRATE
// =============================================================================

// Load hydrates the state from the store. A load failure is logged and
// returned, the state falls back to defaults and the store is detached: the
// session runs in memory so the unreadable blob is never overwritten.
func (s *State) Load() error {
	if s.store == nil {
		s.Hydrate(nil)
		return nil
	}
	data, err := s.store.Load()
	if err != nil {
		s.log.Warn("session load failed, running in memory", zap.Error(err))
		s.Hydrate(nil)
		s.mu.Lock()
		s.detached = true
		s.mu.Unlock()
		return err
	}
	s.Hydrate(data)
	return nil
}

// Detached reports whether the store was set aside after a failed load.
func (s *State) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

// Reattach resumes persistence once the store has been read successfully
// again, and hydrates from blob.
func (s *State) Reattach(blob []byte) {
	s.Hydrate(blob)
	s.mu.Lock()
	s.detached = false
	s.mu.Unlock()
}

// Hydrate replaces the state with the decoded blob. Missing or malformed
// input yields the default state; a malformed field falls back on its own
// without discarding the rest. Hydrate never panics and does not persist.
func (s *State) Hydrate(data []byte) {
	h := decodeBlob(data, s.now())

	s.mu.Lock()
	s.turns = h.turns
	s.images = h.images
	s.keywords = h.keywords
	s.selection = h.selection
	s.settings = h.settings
	s.commandHistory = h.commandHistory
	if len(s.commandHistory) > s.historyCap {
		s.commandHistory = s.commandHistory[:s.historyCap]
	}
	s.lastImageAt = h.lastImageAt
	s.mu.Unlock()

	s.notify(ChangeAll | ChangeHydrated)
}

type hydrated struct {
	turns          []model.Turn
	images         []model.GeneratedImage
	keywords       []model.Keyword
	selection      []string
	settings       model.Settings
	commandHistory []string
	lastImageAt    time.Time
}

func decodeBlob(data []byte, now time.Time) (h hydrated) {
	h.settings = model.DefaultSettings()

	// RELIABILITY: Hydration must never take the session down.
	defer func() {
		if r := recover(); r != nil {
			h = hydrated{settings: model.DefaultSettings()}
		}
	}()

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return h
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return h
	}

	h.turns = decodeTurns(fields["chatHistory"], now)
	h.images = decodeImages(fields["imageHistory"], now)
	h.keywords = decodeKeywords(fields["keywords"])
	h.selection = decodeStrings(fields["selectedKeywords"], true)
	h.commandHistory = decodeStrings(fields["commandHistory"], false)
	h.lastImageAt = decodeTime(fields["lastImageGeneration"])

	var author string
	if json.Unmarshal(fields["selectedAuthor"], &author) == nil {
		h.settings.SelectedAuthor = model.NormalizeAuthor(author)
	}
	var theme model.Theme
	if json.Unmarshal(fields["theme"], &theme) == nil && theme.Valid() {
		h.settings.Theme = theme
	}

	// imageSettings is the stored key; settings.imageGeneration is accepted too.
	var rec imageSettingsRecord
	if raw, ok := fields["imageSettings"]; ok && json.Unmarshal(raw, &rec) == nil {
		h.settings.ImageGeneration = applyImageRecord(h.settings.ImageGeneration, rec)
	} else if raw, ok := fields["settings"]; ok {
		var nested struct {
			ImageGeneration imageSettingsRecord `json:"imageGeneration"`
		}
		if json.Unmarshal(raw, &nested) == nil {
			h.settings.ImageGeneration = applyImageRecord(h.settings.ImageGeneration, nested.ImageGeneration)
		}
	}

	return h
}

func applyImageRecord(ig model.ImageGeneration, rec imageSettingsRecord) model.ImageGeneration {
	if rec.Enabled != nil {
		ig.Enabled = *rec.Enabled
	}
	if mode := model.ImageMode(rec.Mode); mode.Valid() {
		ig.Mode = mode
	}
	switch {
	case rec.IntervalSeconds != nil:
		ig.IntervalSeconds = model.ClampInterval(*rec.IntervalSeconds)
	case rec.IntervalSecondsCamel != nil:
		ig.IntervalSeconds = model.ClampInterval(*rec.IntervalSecondsCamel)
	}
	return ig
}

// decodeTurns accepts current turns and the older {speaker, text} shape.
// Entries without an id get one; a repeated id replaces the earlier entry in
// place, exactly as AddOrReplaceTurn would.
func decodeTurns(raw json.RawMessage, now time.Time) []model.Turn {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}

	var turns []model.Turn
	index := make(map[string]int, len(items))
	for _, item := range items {
		var rec struct {
			ID        json.RawMessage `json:"id"`
			Author    string          `json:"author"`
			Speaker   string          `json:"speaker"`
			Content   string          `json:"content"`
			Text      string          `json:"text"`
			Timestamp json.RawMessage `json:"timestamp"`
		}
		if json.Unmarshal(item, &rec) != nil {
			continue
		}

		content := rec.Content
		if content == "" {
			content = rec.Text
		}
		author := rec.Author
		if author == "" {
			author = rec.Speaker
		}
		turn := model.Turn{
			ID:        rawString(rec.ID),
			Author:    model.NormalizeAuthor(author),
			Content:   content,
			Timestamp: decodeTime(rec.Timestamp),
		}.WithDefaults(now)

		if i, ok := index[turn.ID]; ok {
			turns[i] = turn
			continue
		}
		index[turn.ID] = len(turns)
		turns = append(turns, turn)
	}
	return turns
}

// decodeImages accepts structured images and bare URL strings.
func decodeImages(raw json.RawMessage, now time.Time) []model.GeneratedImage {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}

	var images []model.GeneratedImage
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var img model.GeneratedImage

		var bare string
		if json.Unmarshal(item, &bare) == nil {
			img.URL = strings.TrimSpace(bare)
		} else {
			var rec struct {
				ID        json.RawMessage `json:"id"`
				URL       string          `json:"url"`
				ImageURL  string          `json:"image_url"`
				Prompt    string          `json:"prompt"`
				Timestamp json.RawMessage `json:"timestamp"`
			}
			if json.Unmarshal(item, &rec) != nil {
				continue
			}
			img = model.GeneratedImage{
				ID:        rawString(rec.ID),
				URL:       strings.TrimSpace(rec.URL),
				Prompt:    rec.Prompt,
				Timestamp: decodeTime(rec.Timestamp),
			}
			if img.URL == "" {
				img.URL = strings.TrimSpace(rec.ImageURL)
			}
		}

		if img.URL == "" {
			continue
		}
		if img.ID == "" {
			img.ID = model.NewID()
		}
		if img.Timestamp.IsZero() {
			img.Timestamp = now
		}
		if seen[img.ID] {
			continue
		}
		seen[img.ID] = true
		images = append(images, img)
	}
	return images
}

func decodeKeywords(raw json.RawMessage) []model.Keyword {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}

	var keywords []model.Keyword
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var kw model.Keyword
		if json.Unmarshal(item, &kw) != nil {
			continue
		}
		kw = kw.Normalize()
		if kw.Text == "" || seen[kw.Text] {
			continue
		}
		seen[kw.Text] = true
		keywords = append(keywords, kw)
	}
	return keywords
}

func decodeStrings(raw json.RawMessage, dedupe bool) []string {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		var v string
		if json.Unmarshal(item, &v) != nil || strings.TrimSpace(v) == "" {
			continue
		}
		if dedupe {
			if seen[v] {
				continue
			}
			seen[v] = true
		}
		out = append(out, v)
	}
	return out
}

// rawString reads a JSON string or number as a string.
func rawString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// decodeTime reads an RFC 3339 string or unix milliseconds.
func decodeTime(raw json.RawMessage) time.Time {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			return time.UnixMilli(ms)
		}
		return time.Time{}
	}
	var ms float64
	if json.Unmarshal(raw, &ms) == nil && ms > 0 {
		return time.UnixMilli(int64(ms))
	}
	return time.Time{}
}
