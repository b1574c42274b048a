// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfirmationOptions controls RequireConfirmation.
type ConfirmationOptions struct {
	// ConfirmFlag indicates --yes was passed; no prompt is shown.
	ConfirmFlag bool
	// Interactive indicates a human can answer on In.
	Interactive bool
	In          io.Reader
	Out         io.Writer
}

// RequireConfirmation asks before a destructive action.
//
// Confirmation flow:
//  1. --yes given: confirmed
//  2. no terminal to ask on: usage error naming --yes
//  3. otherwise: prompt, and only y or yes confirms
func RequireConfirmation(action string, opts ConfirmationOptions) (bool, error) {
	if opts.ConfirmFlag {
		return true, nil
	}
	if !opts.Interactive || opts.In == nil {
		return false, &UsageError{
			Message: "refusing to " + action + " without confirmation",
			Usage:   "pass --yes",
		}
	}

	fmt.Fprintf(opts.Out, "%s %s? [y/N] ", WarningStyle.Render("[CONFIRM]"), action)
	line, err := bufio.NewReader(opts.In).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(opts.Out)
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
