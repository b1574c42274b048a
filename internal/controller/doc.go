// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller turns user intents into session mutations and remote
// calls.
//
// A Controller owns the per-turn state machine (Idle, Submitting), the input
// buffer, the exclusive edit slot, the confirmation gate for destructive
// actions and the transient audio URLs. Remote calls run off the caller's
// goroutine; their results are handed back through Options.Dispatch so a UI
// can apply them on its own event loop.
//
// # Usage
//
//	ctrl := controller.New(controller.Options{
//	    State:     state,
//	    Remote:    client,
//	    Images:    scheduler,
//	    Dispatch:  func(fn func()) { program.Send(dispatchMsg(fn)) },
//	    OnNotice:  func(n controller.Notice) { program.Send(noticeMsg(n)) },
//	})
//	ctrl.SetInput("> The tide turns.")
//	ctrl.Submit()
package controller
