// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/storyloom/internal/model"
)

// isolate points the home directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{
		"STORYLOOM_BASE_URL", "STORYLOOM_API_KEY", "STORYLOOM_EVENTS_URL",
		"STORYLOOM_SESSION", "STORYLOOM_STORE", "STORYLOOM_DATA_DIR",
		"STORYLOOM_PASSPHRASE", "STORYLOOM_IMAGES", "STORYLOOM_IMAGE_MODE",
		"STORYLOOM_THEME", "STORYLOOM_LOG_LEVEL",
	} {
		t.Setenv(env, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != "http://127.0.0.1:8000" {
		t.Errorf("BaseURL = %q", cfg.Remote.BaseURL)
	}
	if cfg.Session.Store != "file" || cfg.Session.ID != "default" {
		t.Errorf("session = %+v", cfg.Session)
	}
	if !cfg.Images.Enabled || cfg.Images.Mode != "after_chat" {
		t.Errorf("images = %+v", cfg.Images)
	}
}

func TestLoad_TOMLKeepsUnsetDefaults(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".storyloom", "config.toml")
	writeFile(t, path, `
[remote]
base_url = "https://story.example.com/"

[images]
mode = "periodic"
interval_seconds = 45

[ui]
theme = "light"
author = "Mira"
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != "https://story.example.com" {
		t.Errorf("trailing slash not trimmed: %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.TimeoutSecs != 120 {
		t.Errorf("timeout default lost: %d", cfg.Remote.TimeoutSecs)
	}
	if !cfg.Images.Enabled {
		t.Error("images.enabled default lost")
	}
	if cfg.Images.Mode != "periodic" || cfg.Images.IntervalSeconds != 45 {
		t.Errorf("images = %+v", cfg.Images)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions not tightened: %o", info.Mode().Perm())
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".storyloom", "config.json"), `{"session": {"id": "harbor", "store": "sqlite"}}`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Session.ID != "harbor" || cfg.Session.Store != "sqlite" {
		t.Errorf("session = %+v", cfg.Session)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "bad.toml")
	writeFile(t, path, `[images]
mode = "sometimes"
`)

	_, err := Load(path)
	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidateErrors, got %v", err)
	}
	if len(verrs) != 1 || verrs[0].Field != "images.mode" {
		t.Errorf("unexpected errors: %v", verrs)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("STORYLOOM_BASE_URL", "http://10.0.0.2:9000")
	t.Setenv("STORYLOOM_SESSION", "pirates")
	t.Setenv("STORYLOOM_IMAGES", "false")
	t.Setenv("STORYLOOM_THEME", "light")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Remote.BaseURL != "http://10.0.0.2:9000" || cfg.Session.ID != "pirates" {
		t.Errorf("overrides not applied: %+v %+v", cfg.Remote, cfg.Session)
	}
	if cfg.Images.Enabled {
		t.Error("STORYLOOM_IMAGES=false not applied")
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("theme = %q", cfg.UI.Theme)
	}
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "STORYLOOM_SESSION=from-dotenv\n")
	t.Setenv("STORYLOOM_SESSION", "")
	os.Unsetenv("STORYLOOM_SESSION")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("STORYLOOM_SESSION"); got != "from-dotenv" {
		t.Errorf("STORYLOOM_SESSION = %q", got)
	}
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should not fail: %v", err)
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Remote.BaseURL = "ftp://host" }, "remote.base_url"},
		{"relative url", func(c *Config) { c.Remote.BaseURL = "/api" }, "remote.base_url"},
		{"negative timeout", func(c *Config) { c.Remote.TimeoutSecs = -1 }, "remote.timeout_secs"},
		{"too many retries", func(c *Config) { c.Remote.RetryMax = 11 }, "remote.retry_max"},
		{"http events url", func(c *Config) { c.Remote.EventsURL = "http://host/ws" }, "remote.events_url"},
		{"path in session id", func(c *Config) { c.Session.ID = "../etc" }, "session.id"},
		{"unknown store", func(c *Config) { c.Session.Store = "redis" }, "session.store"},
		{"unknown theme", func(c *Config) { c.UI.Theme = "sepia" }, "ui.theme"},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidateErrors, got %v", err)
			}
			if verrs[0].Field != tt.field {
				t.Errorf("field = %q, want %q", verrs[0].Field, tt.field)
			}
		})
	}

	c := Default()
	c.Remote.EventsURL = "auto"
	if err := c.Validate(); err != nil {
		t.Errorf("default config with auto events should be valid: %v", err)
	}
}

// =============================================================================
// SAVE AND ACCESS TESTS
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Session.ID = "lighthouse"
	cfg.Images.Workflow = "/tmp/flow.json"
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %o, want 600", info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestGetSet(t *testing.T) {
	c := Default()

	if err := c.Set("images.interval_seconds", "90"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set("ui.show_timestamps", "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set("remote.api_key", "secret"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, err := c.Get("images.interval_seconds")
	if err != nil || v.(int) != 90 {
		t.Errorf("Get() = %v, %v", v, err)
	}
	if c.UI.ShowTimestamps {
		t.Error("show_timestamps not cleared")
	}
	if c.Remote.APIKey != "secret" {
		t.Errorf("api key = %q", c.Remote.APIKey)
	}

	if _, err := c.Get("remote.nope"); err == nil {
		t.Error("expected unknown field error")
	}
	if _, err := c.Get("remote"); err == nil {
		t.Error("expected section error")
	}
	if err := c.Set("remote.retry_max", "many"); err == nil {
		t.Error("expected integer parse error")
	}
}

func TestGetAllKeys(t *testing.T) {
	keys := GetAllKeys()
	c := Default()
	for _, k := range keys {
		if _, err := c.Get(k); err != nil {
			t.Errorf("key %q not reachable: %v", k, err)
		}
	}
	joined := strings.Join(keys, " ")
	for _, want := range []string{"remote.base_url", "session.passphrase", "images.workflow", "logging.file"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing key %q", want)
		}
	}
}

func TestString_RedactsSecrets(t *testing.T) {
	c := Default()
	c.Remote.APIKey = "sk-very-secret-key"
	c.Session.Passphrase = "hunter2"

	out := c.String()
	if strings.Contains(out, "very-secret") || strings.Contains(out, "hunter2") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if c.Remote.APIKey != "sk-very-secret-key" {
		t.Error("String() modified the receiver")
	}
}

func TestSessionDefaults(t *testing.T) {
	c := Default()
	c.Images.Mode = "periodic"
	c.Images.IntervalSeconds = 2
	c.UI.Author = "Narrator"
	c.UI.Theme = "light"

	s := c.SessionDefaults()
	if s.ImageGeneration.Mode != model.ModePeriodic || s.ImageGeneration.IntervalSeconds != 5 {
		t.Errorf("image settings = %+v", s.ImageGeneration)
	}
	if s.SelectedAuthor != model.AuthorNarrator {
		t.Errorf("author = %q", s.SelectedAuthor)
	}
	if s.Theme != model.ThemeLight {
		t.Errorf("theme = %q", s.Theme)
	}
}
