// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for storyloom.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - RemoteConfig: Story server address, timeouts and push events
//   - SessionConfig: Which session to open and where it is stored
//   - ImagesConfig: Illustration cadence and ComfyUI workflow
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command line flags (applied by the caller)
//   - Environment variables (STORYLOOM_*), including a .env file
//   - ~/.storyloom/config.toml
//   - ~/.storyloom/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := remote.NewClient(remote.Config{BaseURL: cfg.Remote.BaseURL})
package config
