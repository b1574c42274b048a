// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/util"
)

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete storyloom configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Remote  RemoteConfig  `toml:"remote" json:"remote"`
	Session SessionConfig `toml:"session" json:"session"`
	Images  ImagesConfig  `toml:"images" json:"images"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// RemoteConfig points at the story server.
type RemoteConfig struct {
	// BaseURL is the server root; /api/chat and friends hang off it.
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs bounds one request attempt. Generation is slow.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RetryMax is the retry count for idempotent requests. Chat is never retried.
	RetryMax int `toml:"retry_max" json:"retry_max"`
	// RateLimit caps requests per second; 0 is unlimited.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	// EventsURL enables the push feed. "auto" derives ws://<base>/api/ws.
	EventsURL string `toml:"events_url" json:"events_url"`
	// APIKey is sent as a bearer token when set.
	APIKey string `toml:"api_key" json:"api_key"`
}

// SessionConfig selects the session and its store.
type SessionConfig struct {
	ID string `toml:"id" json:"id"`
	// Store is "file", "sqlite" or "memory".
	Store string `toml:"store" json:"store"`
	// Dir is the data directory; empty means ~/.storyloom.
	Dir string `toml:"dir" json:"dir"`
	// Passphrase seals the stored blob when set.
	Passphrase string `toml:"passphrase" json:"passphrase"`
	// Watch reloads the session when another process rewrites it.
	Watch bool `toml:"watch" json:"watch"`
}

// ImagesConfig seeds the illustration settings of a new session.
type ImagesConfig struct {
	Enabled         bool   `toml:"enabled" json:"enabled"`
	Mode            string `toml:"mode" json:"mode"`
	IntervalSeconds int    `toml:"interval_seconds" json:"interval_seconds"`
	// Workflow is a ComfyUI workflow file. When set, images go through
	// the ComfyUI endpoint.
	Workflow            string `toml:"workflow" json:"workflow"`
	PositivePlaceholder string `toml:"positive_placeholder" json:"positive_placeholder"`
	NegativePlaceholder string `toml:"negative_placeholder" json:"negative_placeholder"`
}

// UIConfig contains user interface settings.
type UIConfig struct {
	// Theme is "dark" or "light" for a new session.
	Theme string `toml:"theme" json:"theme"`
	// Author is the default speaker for a new session; empty is direct.
	Author         string `toml:"author" json:"author"`
	ShowTimestamps bool   `toml:"show_timestamps" json:"show_timestamps"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level       string `toml:"level" json:"level"`
	Development bool   `toml:"development" json:"development"`
	// File is the log path; empty means <data dir>/storyloom.log.
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Remote: RemoteConfig{
			BaseURL:     "http://127.0.0.1:8000",
			TimeoutSecs: 120,
			RetryMax:    2,
		},
		Session: SessionConfig{
			ID:    "default",
			Store: "file",
		},
		Images: ImagesConfig{
			Enabled:             true,
			Mode:                string(model.ModeAfterChat),
			IntervalSeconds:     30,
			PositivePlaceholder: "{{POSITIVE_PROMPT}}",
			NegativePlaceholder: "{{NEGATIVE_PROMPT}}",
		},
		UI: UIConfig{
			Theme:          string(model.ThemeDark),
			ShowTimestamps: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the storyloom configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".storyloom"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: Config files can hold the API key and store passphrase.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env files into the environment. Missing files are not
// an error; with no paths it reads ./.env.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load loads configuration from path, or from the default locations when
// path is empty: TOML first, then JSON, then built-in defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromPath(path)
	}

	cfg := Default()
	for _, candidate := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		p, err := candidate()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(p); statErr != nil {
			continue
		}
		return LoadFromPath(p)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full validation.
// Fields the file leaves out keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# storyloom configuration file\n")
	buf.WriteString("# Environment variables (STORYLOOM_*) override these values.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validStores = map[string]bool{"file": true, "sqlite": true, "memory": true}

// Validate checks the configuration and returns ValidateErrors when
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Remote
	if u, err := url.Parse(c.Remote.BaseURL); err != nil || u.Host == "" {
		add("remote.base_url", "must be an absolute URL, got %q", c.Remote.BaseURL)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("remote.base_url", "scheme must be http or https, got %q", u.Scheme)
	}
	if c.Remote.TimeoutSecs < 0 || c.Remote.TimeoutSecs > 3600 {
		add("remote.timeout_secs", "must be between 0 and 3600, got %d", c.Remote.TimeoutSecs)
	}
	if c.Remote.RetryMax < 0 || c.Remote.RetryMax > 10 {
		add("remote.retry_max", "must be between 0 and 10, got %d", c.Remote.RetryMax)
	}
	if c.Remote.RateLimit < 0 {
		add("remote.rate_limit", "must not be negative")
	}
	if ev := c.Remote.EventsURL; ev != "" && ev != "auto" {
		if u, err := url.Parse(ev); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			add("remote.events_url", "must be \"auto\" or a ws:// or wss:// URL, got %q", ev)
		}
	}

	// Session
	if c.Session.ID == "" || strings.ContainsAny(c.Session.ID, `/\`) || strings.Contains(c.Session.ID, "..") {
		add("session.id", "must be a plain name, got %q", c.Session.ID)
	}
	if !validStores[strings.ToLower(c.Session.Store)] {
		add("session.store", "must be file, sqlite or memory, got %q", c.Session.Store)
	}

	// Images
	if !model.ImageMode(c.Images.Mode).Valid() {
		add("images.mode", "must be after_chat or periodic, got %q", c.Images.Mode)
	}
	if c.Images.IntervalSeconds < 0 {
		add("images.interval_seconds", "must not be negative")
	}

	// UI
	if !model.Theme(c.UI.Theme).Valid() {
		add("ui.theme", "must be dark or light, got %q", c.UI.Theme)
	}

	// Logging
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty values that have a required default.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = d.Remote.BaseURL
	}
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
	if c.Session.ID == "" {
		c.Session.ID = d.Session.ID
	}
	if c.Session.Store == "" {
		c.Session.Store = d.Session.Store
	}
	if c.Images.Mode == "" {
		c.Images.Mode = d.Images.Mode
	}
	if c.Images.IntervalSeconds == 0 {
		c.Images.IntervalSeconds = d.Images.IntervalSeconds
	}
	if c.Images.PositivePlaceholder == "" {
		c.Images.PositivePlaceholder = d.Images.PositivePlaceholder
	}
	if c.Images.NegativePlaceholder == "" {
		c.Images.NegativePlaceholder = d.Images.NegativePlaceholder
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - STORYLOOM_BASE_URL: overrides remote.base_url
//   - STORYLOOM_API_KEY: overrides remote.api_key
//   - STORYLOOM_EVENTS_URL: overrides remote.events_url
//   - STORYLOOM_SESSION: overrides session.id
//   - STORYLOOM_STORE: overrides session.store
//   - STORYLOOM_DATA_DIR: overrides session.dir
//   - STORYLOOM_PASSPHRASE: overrides session.passphrase
//   - STORYLOOM_IMAGES: "1"/"true" or "0"/"false" for images.enabled
//   - STORYLOOM_IMAGE_MODE: overrides images.mode
//   - STORYLOOM_THEME: overrides ui.theme
//   - STORYLOOM_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	strs := []struct {
		env string
		dst *string
	}{
		{"STORYLOOM_BASE_URL", &c.Remote.BaseURL},
		{"STORYLOOM_API_KEY", &c.Remote.APIKey},
		{"STORYLOOM_EVENTS_URL", &c.Remote.EventsURL},
		{"STORYLOOM_SESSION", &c.Session.ID},
		{"STORYLOOM_STORE", &c.Session.Store},
		{"STORYLOOM_DATA_DIR", &c.Session.Dir},
		{"STORYLOOM_PASSPHRASE", &c.Session.Passphrase},
		{"STORYLOOM_IMAGE_MODE", &c.Images.Mode},
		{"STORYLOOM_THEME", &c.UI.Theme},
		{"STORYLOOM_LOG_LEVEL", &c.Logging.Level},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("STORYLOOM_IMAGES"); v != "" {
		c.Images.Enabled = parseBool(v)
	}
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// DataDir returns the session directory, defaulting to ~/.storyloom.
func (c *Config) DataDir() (string, error) {
	if c.Session.Dir != "" {
		return c.Session.Dir, nil
	}
	return ConfigDir()
}

// LogPath returns the log file path.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File != "" {
		return c.Logging.File, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "storyloom.log"), nil
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSecs) * time.Second
}

// SessionDefaults returns the settings a fresh session starts with.
func (c *Config) SessionDefaults() model.Settings {
	s := model.DefaultSettings()
	s.ImageGeneration = model.ImageGeneration{
		Enabled:         c.Images.Enabled,
		Mode:            model.ImageMode(c.Images.Mode),
		IntervalSeconds: model.ClampInterval(c.Images.IntervalSeconds),
	}
	s.SelectedAuthor = model.NormalizeAuthor(c.UI.Author)
	if t := model.Theme(c.UI.Theme); t.Valid() {
		s.Theme = t
	}
	return s
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "remote.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g. "images.mode").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("%s is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation, sorted.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := strings.Split(f.Tag.Get("toml"), ",")[0]
			if name == "" || name == "-" {
				continue
			}
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, prefix+name+".")
				continue
			}
			keys = append(keys, prefix+name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	r := c.Clone()
	if r.Remote.APIKey != "" {
		r.Remote.APIKey = util.RedactSecret(r.Remote.APIKey)
	}
	if r.Session.Passphrase != "" {
		r.Session.Passphrase = "********"
	}
	return r
}

// String renders the configuration as TOML with secrets masked.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("error encoding config: %v", err)
	}
	return buf.String()
}
