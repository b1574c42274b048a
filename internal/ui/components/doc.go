// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable overlays for the storyloom TUI.
//
//   - ToastManager: non-blocking, auto-dismissing notices drawn in a corner
//   - ConfirmPrompt: a modal yes/no decision for destructive actions
package components
