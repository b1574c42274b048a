// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUTHOR TYPE
// =============================================================================

// Author identifies who a turn is attributed to. Anything that is not one of
// the fixed roles is treated as a character name.
type Author string

const (
	AuthorDirect   Author = ""
	AuthorNarrator Author = "narrator"
	AuthorSystem   Author = "system"
	AuthorThought  Author = "thought"
)

// String returns the string representation of the author.
func (a Author) String() string {
	return string(a)
}

// IsCharacter reports whether the author is a named character rather than a
// fixed role.
func (a Author) IsCharacter() bool {
	switch a {
	case AuthorDirect, AuthorNarrator, AuthorSystem, AuthorThought:
		return false
	}
	return true
}

// DisplayName returns a human-readable name for the author.
func (a Author) DisplayName() string {
	switch a {
	case AuthorDirect:
		return "You"
	case AuthorNarrator:
		return "Narrator"
	case AuthorSystem:
		return "System"
	case AuthorThought:
		return "Thought"
	default:
		return string(a)
	}
}

// NormalizeAuthor trims an author name and folds the fixed role names to
// their canonical lowercase form. Character names keep their casing.
func NormalizeAuthor(name string) Author {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", "user", "you", "direct":
		return AuthorDirect
	case "narrator":
		return AuthorNarrator
	case "system":
		return AuthorSystem
	case "thought":
		return AuthorThought
	}
	return Author(name)
}

// ParseAuthorPrefix extracts an author from a raw input line.
//
// Recognized prefixes:
//
//	@name text   character "name"
//	> text       narrator
//	/ text       system
//	* text       thought
//
// Input without a prefix is attributed to fallback. The returned text is
// trimmed; a prefix with no text yields an empty string.
func ParseAuthorPrefix(raw string, fallback Author) (Author, string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return fallback, ""
	}

	switch text[0] {
	case '@':
		rest := text[1:]
		name, body, _ := strings.Cut(rest, " ")
		if name == "" {
			return fallback, strings.TrimSpace(rest)
		}
		return NormalizeAuthor(name), strings.TrimSpace(body)
	case '>':
		return AuthorNarrator, strings.TrimSpace(text[1:])
	case '/':
		return AuthorSystem, strings.TrimSpace(text[1:])
	case '*':
		return AuthorThought, strings.TrimSpace(strings.TrimSuffix(text[1:], "*"))
	}
	return fallback, text
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one authored message unit in the conversation.
type Turn struct {
	ID        string    `json:"id"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn with a generated ID and the current time.
func NewTurn(author Author, content string) Turn {
	return Turn{
		ID:        NewID(),
		Author:    author,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// WithDefaults fills a missing ID or timestamp. Turns from the backend are
// not guaranteed to carry either.
func (t Turn) WithDefaults(now time.Time) Turn {
	if strings.TrimSpace(t.ID) == "" {
		t.ID = NewID()
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = now
	}
	return t
}

// Preview returns the first line of the content, truncated to maxRunes.
func (t Turn) Preview(maxRunes int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(t.Content), "\n")
	runes := []rune(line)
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return line
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// NewID returns a fresh unique identifier for turns and images.
func NewID() string {
	return uuid.NewString()
}
