// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app assembles a running storyloom session from its configuration:
// the store, the session state, the server client, the image scheduler and
// the controller. The terminal UI and the plain REPL both start from here.
//
// # Usage
//
//	a, err := app.New(app.Options{Config: cfg, Logger: log, Dispatch: bridge.Dispatch})
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	a.Start(ctx)
package app
