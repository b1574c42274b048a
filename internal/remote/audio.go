// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"encoding/json"
	"strings"
)

// AudioRequest asks for speech for one piece of text.
type AudioRequest struct {
	Text string `json:"text"`
}

// SynthesizeAudio returns the URL of the synthesized speech.
func (c *Client) SynthesizeAudio(ctx context.Context, text string) (string, error) {
	fields, err := c.post(ctx, "audio", PathAudioGenerate, AudioRequest{Text: text}, true)
	if err != nil {
		return "", err
	}

	var u string
	if json.Unmarshal(fields["url"], &u) != nil || strings.TrimSpace(u) == "" {
		return "", &MalformedResponseError{Op: "audio", Reason: "missing url"}
	}
	return strings.TrimSpace(u), nil
}
