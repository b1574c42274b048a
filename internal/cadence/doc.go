// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cadence decides when story illustrations are generated.
//
// Two modes are supported and they never run together:
//
//   - after_chat: one generation per successful chat turn, skipped while the
//     last generation is younger than Cooldown
//   - periodic: a single recurring timer every IntervalSeconds
//
// # Usage
//
//	sched := cadence.New(cadence.Options{
//	    State:     state,
//	    Generator: client,
//	    Dispatch:  func(fn func()) { program.Send(applyMsg(fn)) },
//	})
//	sched.Attach()     // follow settings changes
//	defer sched.Close()
//
//	// after each successful chat turn
//	sched.AfterChat()
package cadence
