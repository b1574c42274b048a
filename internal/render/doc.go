// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render projects a session snapshot into a frame and draws it.
//
// Build is a pure function of its Input: the same input always yields an
// equal Frame, and drawing a Frame with the same View yields the same text.
// Nothing accumulates between calls. Projector caches the latest snapshot
// and records which regions changed since the last draw.
package render
