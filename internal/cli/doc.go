// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli parses the storyloom command line and runs the non-TUI
// commands.
//
// # Commands
//
//   - tui (default): full-screen story client
//   - plain: line-oriented REPL, chosen automatically when stdout is not a
//     terminal
//   - export: write the session as Markdown, HTML or JSON
//   - reset: clear the stored session
//   - config: show, init, path, get, set, keys
//   - version, help
//
// # Errors
//
// Handlers return errors rather than printing them; main displays them once
// with DisplayError and exits with GetExitCode.
package cli
