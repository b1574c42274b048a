// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package story is the bubbletea front end for a storyloom session.
//
// The Model owns no story data. It forwards keys to a controller.Controller,
// reads the session through a render.Projector after every update and draws
// the resulting render.Frame. Remote completions reach the loop through a
// Bridge, so every session mutation happens inside Update.
package story
