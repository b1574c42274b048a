// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jeranaias/storyloom/internal/model"
)

// =============================================================================
// CHAT
// =============================================================================

// ChatRequest is one outgoing turn.
type ChatRequest struct {
	Message          string       `json:"message"`
	Author           model.Author `json:"author"`
	History          []model.Turn `json:"history"`
	SelectedKeywords []string     `json:"selectedKeywords"`
}

// MarshalJSON also writes the message as "content" for backends that read
// the older field name.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	type plain ChatRequest
	history := r.History
	if history == nil {
		history = []model.Turn{}
	}
	selected := r.SelectedKeywords
	if selected == nil {
		selected = []string{}
	}
	p := plain(r)
	p.History = history
	p.SelectedKeywords = selected
	return json.Marshal(struct {
		plain
		Content string `json:"content"`
	}{p, r.Message})
}

// ChatResponse carries the turns to upsert and the replacement keyword set.
type ChatResponse struct {
	Messages []model.Turn
	Keywords []model.Keyword
}

// Chat sends one turn. It is never retried.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	fields, err := c.post(ctx, "chat", PathChat, req, false)
	if err != nil {
		return nil, err
	}
	return parseChatResponse(fields)
}

func parseChatResponse(fields map[string]json.RawMessage) (*ChatResponse, error) {
	// Some backends wrap the payload as {"llm_response": {...}}.
	if inner, ok := fields["llm_response"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err != nil || nested == nil {
			return nil, &MalformedResponseError{Op: "chat", Reason: "llm_response is not an object"}
		}
		if msg := errorText(nested); msg != "" {
			return nil, &TransportError{Op: "chat", Message: msg}
		}
		fields = nested
	}

	rawMessages, ok := fields["messages"]
	if !ok {
		return nil, &MalformedResponseError{Op: "chat", Reason: "missing messages"}
	}
	var items []wireTurn
	if err := json.Unmarshal(rawMessages, &items); err != nil {
		return nil, &MalformedResponseError{Op: "chat", Reason: "messages is not a list of turns"}
	}

	resp := &ChatResponse{Messages: make([]model.Turn, 0, len(items))}
	for _, item := range items {
		resp.Messages = append(resp.Messages, item.turn())
	}

	if rawKeywords, ok := fields["keywords"]; ok && string(rawKeywords) != "null" {
		if err := json.Unmarshal(rawKeywords, &resp.Keywords); err != nil {
			return nil, &MalformedResponseError{Op: "chat", Reason: "keywords is not a list"}
		}
	}
	return resp, nil
}

// wireTurn accepts both {author, content} and the {speaker, text} dialog shape.
type wireTurn struct {
	ID      json.RawMessage `json:"id"`
	Author  string          `json:"author"`
	Speaker string          `json:"speaker"`
	Content string          `json:"content"`
	Text    string          `json:"text"`
	RawTime json.RawMessage `json:"timestamp"`
}

// turn converts to a model.Turn. Missing IDs and timestamps are filled by
// the caller when the turn is applied.
func (w wireTurn) turn() model.Turn {
	author := w.Author
	if author == "" {
		author = w.Speaker
	}
	content := w.Content
	if content == "" {
		content = w.Text
	}

	var id string
	if json.Unmarshal(w.ID, &id) != nil {
		var n json.Number
		if json.Unmarshal(w.ID, &n) == nil {
			id = n.String()
		}
	}

	t := model.Turn{
		ID:      strings.TrimSpace(id),
		Author:  model.NormalizeAuthor(author),
		Content: content,
	}
	if len(w.RawTime) > 0 {
		// Unparseable timestamps are left zero and filled on apply.
		_ = json.Unmarshal(w.RawTime, &t.Timestamp)
	}
	return t
}
