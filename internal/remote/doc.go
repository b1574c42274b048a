// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package remote provides typed wrappers around the story backend API.
//
// # Key Types
//
//   - Client: chat, image generation and audio synthesis over HTTP
//   - TransportError: network failure, non-2xx status or an {error} body
//   - MalformedResponseError: a 2xx body missing the fields we need
//   - EventStream: optional websocket feed of server-pushed updates
//
// # Usage
//
//	client := remote.NewClient(remote.Config{BaseURL: "http://localhost:8000"})
//	resp, err := client.Chat(ctx, remote.ChatRequest{Message: "Hello", Author: "narrator"})
//	if errors.Is(err, remote.ErrTransport) {
//	    // show a transient notice
//	}
//
// # Retries
//
// Chat requests are never retried: a retried turn could be applied twice by
// the backend. Image and audio requests are retried on connection errors,
// 429 and 5xx responses.
package remote
