// storyloom - collaborative story writing in the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/app"
	"github.com/jeranaias/storyloom/internal/cadence"
	"github.com/jeranaias/storyloom/internal/cli"
	"github.com/jeranaias/storyloom/internal/config"
	"github.com/jeranaias/storyloom/internal/logging"
	"github.com/jeranaias/storyloom/internal/ui/components"
	"github.com/jeranaias/storyloom/internal/ui/story"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	var err error
	switch cmd {
	case cli.CmdTUI:
		err = runInteractive(args, true)
	case cli.CmdPlain:
		err = runInteractive(args, false)
	case cli.CmdExport:
		err = withConfig(args, func(cfg *config.Config) error {
			return cli.HandleExport(args, cfg, os.Stdout)
		})
	case cli.CmdReset:
		err = withConfig(args, func(cfg *config.Config) error {
			return cli.HandleReset(args, cfg, os.Stdin, os.Stdout)
		})
	case cli.CmdConfig:
		err = cli.HandleConfig(args, os.Stdout)
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
	default:
		err = &cli.UsageError{
			Message: fmt.Sprintf("unknown command %q", args.Subcommand),
			Usage:   "storyloom help",
		}
	}

	if err != nil {
		cli.DisplayError(os.Stderr, err, false)
		os.Exit(cli.GetExitCode(err))
	}
}

func withConfig(args cli.Args, fn func(*config.Config) error) error {
	cfg, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}
	return fn(cfg)
}

// openLog starts the file logger. The terminal belongs to the UI, so logs
// never go to stderr here.
func openLog(cfg *config.Config) *zap.Logger {
	path, err := cfg.LogPath()
	if err != nil {
		return zap.NewNop()
	}
	lc := logging.DefaultConfig(path)
	lc.Level = cfg.Logging.Level
	return logging.NewOrNop(lc)
}

// runInteractive starts the full-screen client, or the plain one when asked
// or when there is no terminal to draw on.
func runInteractive(args cli.Args, fullScreen bool) error {
	cfg, err := cli.LoadConfig(args)
	if err != nil {
		return err
	}
	log := openLog(cfg)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !fullScreen || !cli.CanRunTUI() {
		return cli.RunPlain(ctx, cfg, log)
	}
	return runTUI(ctx, cfg, log)
}

// runTUI starts the Bubble Tea interface.
func runTUI(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	toasts := components.NewToastManager()
	bridge := story.NewBridge()

	a, err := app.New(app.Options{
		Config:   cfg,
		Logger:   log,
		Dispatch: bridge.Dispatch,
		OnNotice: story.NoticeSink(toasts),
		OnGenerated: func(count int, trigger cadence.Trigger) {
			msg := "New illustration"
			if count > 1 {
				msg = fmt.Sprintf("%d new illustrations", count)
			}
			toasts.Add(components.ToastKindSuccess, msg)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	m := story.New(story.Options{
		Controller:     a.Controller,
		Images:         a.Images,
		Toasts:         toasts,
		Title:          cfg.Session.ID,
		ShowTimestamps: cfg.UI.ShowTimestamps,
		Logger:         log,
	})
	defer m.Close()

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	bridge.Attach(p)
	defer bridge.Close()
	a.Start(ctx)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running storyloom: %w", err)
	}
	return nil
}
