// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/remote"
)

// SynthesizeAudio requests speech for turn id. The URL is kept for the life
// of the process and never persisted. It returns false if the turn does not
// exist or a request for it is already running.
func (c *Controller) SynthesizeAudio(id string) bool {
	if c.remote == nil {
		return false
	}
	t, ok := c.state.Turn(id)
	if !ok {
		return false
	}

	c.mu.Lock()
	if c.audioPending[id] {
		c.mu.Unlock()
		return false
	}
	c.audioPending[id] = true
	c.mu.Unlock()

	epoch := c.state.Epoch()
	text := t.Content
	c.spawn(func() {
		ctx, cancel := c.callContext()
		defer cancel()
		url, err := c.remote.SynthesizeAudio(ctx, text)
		c.dispatch(func() { c.completeAudio(epoch, id, url, err) })
	})
	return true
}

func (c *Controller) completeAudio(epoch uint64, id, url string, err error) {
	c.mu.Lock()
	delete(c.audioPending, id)
	c.mu.Unlock()

	if epoch != c.state.Epoch() {
		return
	}
	if err != nil {
		c.log.Warn("audio synthesis failed", zap.String("turn", id), zap.Error(err))
		c.notify(NoticeError, remote.UserMessage(err))
		return
	}
	if _, ok := c.state.Turn(id); !ok {
		return
	}

	c.mu.Lock()
	c.audio[id] = url
	c.mu.Unlock()

	if c.onAudio != nil {
		c.onAudio(id, url)
	}
}

// AudioURL returns the synthesized audio for turn id, if any.
func (c *Controller) AudioURL(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.audio[id]
	return u, ok
}

// AudioPending reports whether audio for turn id is being synthesized.
func (c *Controller) AudioPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioPending[id]
}

// AudioURLs returns a copy of every known audio URL keyed by turn id.
func (c *Controller) AudioURLs() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.audio))
	for k, v := range c.audio {
		out[k] = v
	}
	return out
}
