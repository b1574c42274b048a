// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across storyloom.
//
// # Key Functions
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//   - ContentHash: stable digest used to recognize our own writes
//
// Display:
//   - TruncateWidth: display-width aware truncation with ellipsis
//   - PadRight: pad to a display width
//
// # Usage
//
//	// Write a session blob without risking a torn file
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Fit an author label into a fixed column
//	label := util.TruncateWidth(name, 18)
package util
