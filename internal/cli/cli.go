// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/storyloom/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdPlain
	CmdExport
	CmdReset
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdPlain:
		return "plain"
	case CmdExport:
		return "export"
	case CmdReset:
		return "reset"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	}
	return "unknown"
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	ConfigPath string
	Session    string
	BaseURL    string
	Theme      string
	Store      string
	Verbose    bool

	// Command-specific
	Subcommand string

	// Raw holds the arguments after the command name.
	Raw []string
}

const usageText = `storyloom - collaborative story client for the terminal

Write a story together with a language model. Keywords steer the next
turn; illustrations arrive as the story goes.

Usage:
  storyloom                      Start the full-screen client (default)
  storyloom plain                Line-by-line client for pipes and dumb terminals
  storyloom export [flags]       Write the story to a file
  storyloom reset [--yes]        Delete the stored session
  storyloom config [subcommand]  Show or change configuration
  storyloom version              Show version information

Export Flags:
  --format md|html|json          Output format (default: md)
  --out DIR                      Output directory (default: .)
  --title TEXT                   Document title (default: session id)
  --theme dark|light             HTML page theme
  --stdout                       Print instead of writing a file
  --no-images                    Leave illustrations out

Config Commands:
  storyloom config show          Print the effective configuration
  storyloom config init          Write a default config file
  storyloom config path          Show the config file location
  storyloom config get KEY       Print one value (e.g. remote.base_url)
  storyloom config set KEY VAL   Change one value in the config file
  storyloom config keys          List every key

Global Flags:
  --config PATH                  Config file (default: ~/.storyloom/config.toml)
  --session ID                   Session to open
  --base-url URL                 Story server address
  --store file|sqlite|memory     Session store
  --theme dark|light             Theme for a new session
  -v, --verbose                  Debug logging

Writing (TUI and plain):
  text            Say something as the selected author
  @name text      Speak as a character
  > text          Narrate
  * text          Inner thought
  / text          System instruction to the storyteller

Environment:
  STORYLOOM_BASE_URL, STORYLOOM_SESSION, STORYLOOM_API_KEY and friends
  override the config file; a .env file in the working directory is read.

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "storyloom version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses os.Args.
func Parse() (Command, Args) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses command-line arguments and returns the command and args.
// Global flags may appear anywhere.
func ParseArgs(argv []string) (Command, Args) {
	remaining, parsed := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, parsed
	}

	cmd := strings.ToLower(remaining[0])
	parsed.Raw = remaining[1:]
	if len(parsed.Raw) > 0 && !strings.HasPrefix(parsed.Raw[0], "-") {
		parsed.Subcommand = parsed.Raw[0]
	}

	switch cmd {
	case "tui":
		return CmdTUI, parsed
	case "plain", "repl":
		return CmdPlain, parsed
	case "export":
		return CmdExport, parsed
	case "reset":
		return CmdReset, parsed
	case "config", "cfg":
		return CmdConfig, parsed
	case "version", "--version":
		return CmdVersion, parsed
	case "help", "-h", "--help":
		return CmdHelp, parsed
	}

	parsed.Subcommand = cmd
	return CmdUnknown, parsed
}

// parseGlobalFlags extracts global flags from args and returns the rest.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	valueFlags := map[string]*string{
		"--config":   &parsed.ConfigPath,
		"--session":  &parsed.Session,
		"--base-url": &parsed.BaseURL,
		"--store":    &parsed.Store,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "-v" || arg == "--verbose" {
			parsed.Verbose = true
			continue
		}

		name, value, hasValue := strings.Cut(arg, "=")
		if dst, ok := valueFlags[name]; ok {
			if hasValue {
				*dst = value
			} else if i+1 < len(args) {
				i++
				*dst = args[i]
			}
			continue
		}

		// --theme is also an export flag; only take it before the command.
		if name == "--theme" && len(remaining) == 0 {
			if hasValue {
				parsed.Theme = value
			} else if i+1 < len(args) {
				i++
				parsed.Theme = args[i]
			}
			continue
		}

		remaining = append(remaining, arg)
	}
	return remaining, parsed
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// LoadConfig reads .env, the config file and the environment, then applies
// the global flags on top.
func LoadConfig(args Args) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, NewCommandError("config", "load", "bad .env file", err)
	}
	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	overrides := map[string]string{
		"session.id":      args.Session,
		"remote.base_url": args.BaseURL,
		"session.store":   args.Store,
		"ui.theme":        args.Theme,
	}
	for key, val := range overrides {
		if val == "" {
			continue
		}
		if err := cfg.Set(key, val); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}
