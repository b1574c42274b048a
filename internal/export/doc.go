// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a story session out as a standalone document.
//
// # Formats
//
//   - Markdown: turns grouped by author, images as links, keyword list
//   - HTML: self-contained page with embedded CSS; all story text and image
//     URLs pass through a bluemonday policy
//   - JSON: the session data, re-readable by other tools
//
// # Usage
//
//	doc := export.FromSnapshot("The Harbor", state.Snapshot(), time.Now())
//	exp, err := export.ForFormat("html", export.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	path, err := export.WriteFile(doc, exp, opts)
package export
