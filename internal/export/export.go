// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/session"
	"github.com/jeranaias/storyloom/internal/util"
)

// ErrUnknownFormat is returned by ForFormat for unsupported formats.
var ErrUnknownFormat = errors.New("unknown export format")

// ErrEmptyStory is returned when there is nothing to export.
var ErrEmptyStory = errors.New("story has no turns")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for story exporters.
type Exporter interface {
	// Export converts a document to the target format and returns the content.
	Export(doc *Document) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".md", ".html").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Document is the exportable view of one session.
type Document struct {
	Title      string                 `json:"title"`
	ExportedAt time.Time              `json:"exportedAt"`
	Turns      []model.Turn           `json:"turns"`
	Images     []model.GeneratedImage `json:"images"`
	Keywords   []model.Keyword        `json:"keywords"`
	Selected   []string               `json:"selectedKeywords"`
	Settings   model.Settings         `json:"settings"`
}

// FromSnapshot builds a document from a session snapshot.
func FromSnapshot(title string, snap session.Snapshot, now time.Time) *Document {
	if strings.TrimSpace(title) == "" {
		title = "Untitled story"
	}
	return &Document{
		Title:      title,
		ExportedAt: now,
		Turns:      snap.Turns,
		Images:     snap.Images,
		Keywords:   snap.Keywords,
		Selected:   snap.SelectedKeywords(),
		Settings:   snap.Settings,
	}
}

// Started returns the timestamp of the first turn, or the zero time.
func (d *Document) Started() time.Time {
	for _, t := range d.Turns {
		if !t.Timestamp.IsZero() {
			return t.Timestamp
		}
	}
	return time.Time{}
}

func validate(doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	if len(doc.Turns) == 0 {
		return ErrEmptyStory
	}
	return nil
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// IncludeMetadata includes a metadata header (dates, counts, settings).
	IncludeMetadata bool

	// IncludeTimestamps includes per-turn timestamps.
	IncludeTimestamps bool

	// IncludeImages lists the generated images.
	IncludeImages bool

	// Theme for HTML export ("light" or "dark").
	// Default: "dark"
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		IncludeImages:     true,
		Theme:             "dark",
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ForFormat returns the exporter for "md", "markdown", "html" or "json".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	}
	return nil, fmt.Errorf("%w: %q (want md, html or json)", ErrUnknownFormat, format)
}

// WriteFile exports doc into opts.OutputDir and returns the file path.
func WriteFile(doc *Document, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("story_%s_%s%s",
		sanitizeFilename(doc.Title),
		doc.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(opts.OutputDir, filename)

	// RELIABILITY: Atomic write so an interrupted export leaves no partial file
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	maxLen := 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	result := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result = append(result, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			result = append(result, '_')
		case r < 32 || r == 127:
			result = append(result, '-')
		default:
			result = append(result, r)
		}
	}

	if len(result) == 0 {
		return "story"
	}
	return string(result)
}

// turnGroup is a run of consecutive turns by one author.
type turnGroup struct {
	Author model.Author
	Turns  []model.Turn
}

func groupTurns(turns []model.Turn) []turnGroup {
	var groups []turnGroup
	for _, t := range turns {
		if n := len(groups); n > 0 && groups[n-1].Author == t.Author {
			groups[n-1].Turns = append(groups[n-1].Turns, t)
			continue
		}
		groups = append(groups, turnGroup{Author: t.Author, Turns: []model.Turn{t}})
	}
	return groups
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04")
}
