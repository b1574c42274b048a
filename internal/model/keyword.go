// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// Category is used only to style keyword chips.
type Category string

const (
	CategoryAction  Category = "action"
	CategoryEmotion Category = "emotion"
	CategoryObject  Category = "object"
	CategoryPlot    Category = "plot"
)

// Keyword is a short tag surfaced by the backend after a turn.
type Keyword struct {
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Weight   float64  `json:"weight"`
}

// Normalize trims the text, lowercases the category and clamps the weight to
// the 0..1 range.
func (k Keyword) Normalize() Keyword {
	k.Text = strings.TrimSpace(k.Text)
	k.Category = Category(strings.ToLower(strings.TrimSpace(string(k.Category))))
	switch {
	case k.Weight < 0 || k.Weight != k.Weight:
		k.Weight = 0
	case k.Weight > 1:
		k.Weight = 1
	}
	return k
}

// Known reports whether the category is one of the styled categories.
func (c Category) Known() bool {
	switch c {
	case CategoryAction, CategoryEmotion, CategoryObject, CategoryPlot:
		return true
	}
	return false
}
