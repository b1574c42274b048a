// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"
)

// GeneratedImage is one illustration produced by the image service.
type GeneratedImage struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"timestamp"`
}

// ImagesFromURLs turns a generation result into images sharing one prompt and
// timestamp. Blank URLs are skipped.
func ImagesFromURLs(urls []string, prompt string, now time.Time) []GeneratedImage {
	images := make([]GeneratedImage, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		images = append(images, GeneratedImage{
			ID:        NewID(),
			URL:       u,
			Prompt:    prompt,
			Timestamp: now,
		})
	}
	return images
}
