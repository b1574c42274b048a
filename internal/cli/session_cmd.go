// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/storyloom/internal/config"
	"github.com/jeranaias/storyloom/internal/export"
	"github.com/jeranaias/storyloom/internal/session"
	"github.com/jeranaias/storyloom/internal/storage"
)

// openStore opens the configured session store.
func openStore(cfg *config.Config) (storage.Store, error) {
	dir, err := cfg.DataDir()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return storage.Open(storage.Options{
		Kind:       cfg.Session.Store,
		Dir:        dir,
		SessionID:  cfg.Session.ID,
		Passphrase: cfg.Session.Passphrase,
	})
}

func closeStore(s storage.Store) {
	if c, ok := s.(interface{ Close() error }); ok {
		c.Close()
	}
}

// =============================================================================
// EXPORT
// =============================================================================

// HandleExport runs "storyloom export". The session is read, never written.
func HandleExport(args Args, cfg *config.Config, out io.Writer) error {
	p := NewArgParser(args.Raw)

	format := p.FlagOrDefault("format", "md")
	opts := export.DefaultOptions()
	opts.OutputDir = p.FlagOrDefault("out", ".")
	opts.IncludeImages = !p.BoolFlag("no-images")
	opts.Theme = p.FlagOrDefault("theme", cfg.UI.Theme)

	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	blob, err := store.Load()
	if err != nil {
		return NewCommandError("export", "load", "session "+cfg.Session.ID, err)
	}
	state := session.New(session.Options{})
	state.Hydrate(blob)

	title := p.FlagOrDefault("title", cfg.Session.ID)
	doc := export.FromSnapshot(title, state.Snapshot(), time.Now())

	if p.BoolFlag("stdout") {
		content, err := exporter.Export(doc)
		if err != nil {
			return NewCommandError("export", "render", format, err)
		}
		if IsStdoutTTY() && ColorsEnabled() {
			fmt.Fprint(out, export.Highlight(content, strings.ToLower(format)))
			return nil
		}
		_, err = out.Write(content)
		return err
	}

	path, err := export.WriteFile(doc, exporter, opts)
	if err != nil {
		return NewCommandError("export", "write", format, err)
	}
	fmt.Fprintf(out, "%s exported %d turns to %s\n", SuccessStyle.Render("[OK]"), len(doc.Turns), path)
	return nil
}

// =============================================================================
// RESET
// =============================================================================

// HandleReset runs "storyloom reset", clearing the stored session.
func HandleReset(args Args, cfg *config.Config, in io.Reader, out io.Writer) error {
	p := NewArgParser(args.Raw)

	ok, err := RequireConfirmation(fmt.Sprintf("delete session %q", cfg.Session.ID), ConfirmationOptions{
		ConfirmFlag: p.BoolFlag("yes", "y"),
		Interactive: IsTTY(),
		In:          in,
		Out:         out,
	})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(out, DimStyle.Render("Cancelled."))
		return nil
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	if err := store.Clear(); err != nil {
		return NewCommandError("reset", "clear", "session "+cfg.Session.ID, err)
	}
	fmt.Fprintf(out, "%s session %q cleared\n", SuccessStyle.Render("[OK]"), cfg.Session.ID)
	return nil
}
