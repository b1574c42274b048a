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
// IMAGE GENERATION
// =============================================================================

// Workflow is a ComfyUI workflow graph with prompt placeholders. The backend
// substitutes the generated prompts for the placeholders before queueing it.
type Workflow struct {
	Graph               json.RawMessage
	PositivePlaceholder string
	NegativePlaceholder string
}

// ImageRequest asks the backend to illustrate the story so far.
type ImageRequest struct {
	History      []model.Turn           `json:"history"`
	ImageHistory []model.GeneratedImage `json:"imageHistory"`

	// Workflow routes the request to the ComfyUI endpoint when set.
	Workflow *Workflow `json:"-"`
}

type comfyRequest struct {
	History                   []model.Turn           `json:"history"`
	ImageHistory              []model.GeneratedImage `json:"imageHistory"`
	Workflow                  json.RawMessage        `json:"workflow"`
	PositivePromptPlaceholder string                 `json:"positivePromptPlaceholder"`
	NegativePromptPlaceholder string                 `json:"negativePromptPlaceholder"`
}

// ImageResult is a normalized generation result.
type ImageResult struct {
	URLs   []string
	Prompt string
}

// GenerateImage requests one or more illustrations. Multi-URL and single-URL
// response shapes are both accepted and normalized to a list.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	history := req.History
	if history == nil {
		history = []model.Turn{}
	}
	images := req.ImageHistory
	if images == nil {
		images = []model.GeneratedImage{}
	}

	var (
		fields map[string]json.RawMessage
		err    error
	)
	if req.Workflow != nil {
		fields, err = c.post(ctx, "image", PathImageComfyUI, comfyRequest{
			History:                   history,
			ImageHistory:              images,
			Workflow:                  req.Workflow.Graph,
			PositivePromptPlaceholder: req.Workflow.PositivePlaceholder,
			NegativePromptPlaceholder: req.Workflow.NegativePlaceholder,
		}, true)
	} else {
		fields, err = c.post(ctx, "image", PathImageGenerate, ImageRequest{
			History:      history,
			ImageHistory: images,
		}, true)
	}
	if err != nil {
		return nil, err
	}
	return parseImageResponse(fields)
}

func parseImageResponse(fields map[string]json.RawMessage) (*ImageResult, error) {
	result := &ImageResult{}
	_ = json.Unmarshal(fields["prompt"], &result.Prompt)

	if raw, ok := fields["urls"]; ok {
		var urls []string
		if err := json.Unmarshal(raw, &urls); err != nil {
			return nil, &MalformedResponseError{Op: "image", Reason: "urls is not a list of strings"}
		}
		for _, u := range urls {
			if u = strings.TrimSpace(u); u != "" {
				result.URLs = append(result.URLs, u)
			}
		}
	} else {
		for _, key := range []string{"url", "image_url"} {
			var u string
			if json.Unmarshal(fields[key], &u) == nil && strings.TrimSpace(u) != "" {
				result.URLs = []string{strings.TrimSpace(u)}
				break
			}
		}
	}

	if len(result.URLs) == 0 {
		return nil, &MalformedResponseError{Op: "image", Reason: "no image urls"}
	}
	return result, nil
}
