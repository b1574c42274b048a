// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "storyloom.log")
	logger, err := New(DefaultConfig(path))
	require.NoError(t, err)

	logger.Info("session loaded", zap.Int("turns", 3))
	logger.Debug("hidden at info")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "session loaded", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "storyloom", entry["logger"])
	assert.EqualValues(t, 3, entry["turns"])
}

func TestNew_DevelopmentConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.log")
	logger, err := New(Config{Level: "DEBUG", Development: true, OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Debug("tick")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DEBUG")
	assert.Contains(t, string(data), "tick")
	assert.NotContains(t, string(data), "\x1b[", "no color codes in files")
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.Error(t, err)

	assert.NotNil(t, NewOrNop(Config{Level: "chatty"}))
}
