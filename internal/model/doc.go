// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the story session.
//
// # Key Types
//
//   - Turn: one authored message unit in the conversation
//   - Author: who a turn is attributed to (direct user, narrator, system, thought or a character)
//   - GeneratedImage: one illustration produced by the image service
//   - Keyword: a backend-suggested tag offered as a hint for the next turn
//   - Settings: image cadence, selected author and theme
//
// # Usage
//
//	turn := model.NewTurn(model.AuthorNarrator, "The door creaks open.")
//	author, text := model.ParseAuthorPrefix("@Mira I saw it too", model.AuthorDirect)
//
// Values in this package carry no behavior beyond normalization; all mutation
// of session data goes through the session package.
package model
