// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/storyloom/internal/config"
	"github.com/jeranaias/storyloom/internal/util"
)

// secretKeys are masked by "config get" unless --reveal is given.
var secretKeys = map[string]bool{
	"remote.api_key":     true,
	"session.passphrase": true,
}

// HandleConfig runs "storyloom config <subcommand>".
func HandleConfig(args Args, out io.Writer) error {
	p := NewArgParser(args.Raw)

	switch sub := strings.ToLower(p.Subcommand()); sub {
	case "", "show":
		return configShow(args, p, out)
	case "init":
		return configInit(args, p, out)
	case "path":
		path, err := configFilePath(args)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	case "get":
		return configGet(args, p, out)
	case "set":
		return configSet(args, p, out)
	case "keys":
		for _, k := range config.GetAllKeys() {
			fmt.Fprintln(out, k)
		}
		return nil
	default:
		return &UsageError{
			Message: fmt.Sprintf("unknown config subcommand %q", sub),
			Usage:   "storyloom config [show|init|path|get|set|keys]",
		}
	}
}

// configFilePath picks the file config commands read and write: --config,
// then an existing TOML or JSON file, then the default TOML path.
func configFilePath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	tomlPath, err := config.ConfigPathTOML()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	if jsonPath, err := config.ConfigPathJSON(); err == nil {
		if _, err := os.Stat(jsonPath); err == nil {
			return jsonPath, nil
		}
	}
	return tomlPath, nil
}

func configShow(args Args, p *ArgParser, out io.Writer) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	if p.BoolFlag("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg.Redacted())
	}

	path, _ := configFilePath(args)
	fmt.Fprintln(out, TitleStyle.Render("storyloom configuration"))
	fmt.Fprintf(out, "%s%s\n\n", RenderLabel("File"), DimStyle.Render(path))
	fmt.Fprint(out, cfg.String())
	return nil
}

func configInit(args Args, p *ArgParser, out io.Writer) error {
	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !p.BoolFlag("force", "f") {
		return &UsageError{
			Message: fmt.Sprintf("%s already exists", path),
			Usage:   "storyloom config init --force",
		}
	}
	if err := saveConfigFile(config.Default(), path); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s wrote %s\n", SuccessStyle.Render("[OK]"), path)
	return nil
}

func configGet(args Args, p *ArgParser, out io.Writer) error {
	key := p.Positional(1)
	if key == "" {
		return ErrMissingArgument("KEY", "storyloom config get KEY")
	}
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}
	val, err := cfg.Get(key)
	if err != nil {
		return &UsageError{Message: err.Error(), Usage: "storyloom config keys"}
	}

	text := fmt.Sprint(val)
	if secretKeys[strings.ToLower(key)] && !p.BoolFlag("reveal") {
		text = util.RedactSecret(text)
	}
	fmt.Fprintln(out, text)
	return nil
}

// configSet edits the file alone; environment overrides are not written back.
func configSet(args Args, p *ArgParser, out io.Writer) error {
	key, value := p.Positional(1), strings.Join(p.PositionalFrom(2), " ")
	if key == "" || p.PositionalCount() < 3 {
		return ErrMissingArgument("KEY VALUE", "storyloom config set KEY VALUE")
	}

	path, err := configFilePath(args)
	if err != nil {
		return err
	}
	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		load := config.LoadTOML
		if strings.HasSuffix(path, ".json") {
			load = config.LoadJSON
		}
		if err := load(cfg, path); err != nil {
			return &ConfigError{Err: err}
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return &ConfigError{Err: statErr}
	}

	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Message: err.Error(), Usage: "storyloom config keys"}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	if err := saveConfigFile(cfg, path); err != nil {
		return err
	}

	shown := value
	if secretKeys[strings.ToLower(key)] {
		shown = util.RedactSecret(value)
	}
	fmt.Fprintf(out, "%s %s = %s\n", SuccessStyle.Render("[OK]"), key, shown)
	return nil
}

func saveConfigFile(cfg *config.Config, path string) error {
	save := config.SaveTOML
	if strings.HasSuffix(path, ".json") {
		save = config.SaveJSON
	}
	if err := save(cfg, path); err != nil {
		return NewCommandError("config", "save", path, err)
	}
	return nil
}
