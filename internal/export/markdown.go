// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/render"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports stories to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a document to Markdown format.
func (e *MarkdownExporter) Export(doc *Document) ([]byte, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	var sb strings.Builder

	// YAML frontmatter with metadata
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(doc.Title)))
		if started := doc.Started(); !started.IsZero() {
			sb.WriteString(fmt.Sprintf("started: %s\n", started.Format(time.RFC3339)))
		}
		sb.WriteString(fmt.Sprintf("turns: %d\n", len(doc.Turns)))
		sb.WriteString(fmt.Sprintf("images: %d\n", len(doc.Images)))
		sb.WriteString(fmt.Sprintf("exported: %s\n", doc.ExportedAt.Format(time.RFC3339)))
		sb.WriteString("generator: storyloom\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString(fmt.Sprintf("# %s\n\n", escapeMarkdown(doc.Title)))

	for _, g := range groupTurns(doc.Turns) {
		sb.WriteString(e.formatGroup(g))
	}

	if e.options.IncludeImages && len(doc.Images) > 0 {
		sb.WriteString("## Illustrations\n\n")
		for _, img := range doc.Images {
			alt := img.Prompt
			if alt == "" {
				alt = "illustration"
			}
			sb.WriteString(fmt.Sprintf("![%s](%s)\n\n", escapeMarkdown(alt), img.URL))
		}
	}

	if e.options.IncludeMetadata && len(doc.Keywords) > 0 {
		selected := make(map[string]bool, len(doc.Selected))
		for _, s := range doc.Selected {
			selected[s] = true
		}
		sb.WriteString("## Keywords\n\n")
		for _, kw := range doc.Keywords {
			mark := " "
			if selected[kw.Text] {
				mark = "x"
			}
			line := fmt.Sprintf("- [%s] %s", mark, escapeMarkdown(kw.Text))
			if kw.Category != "" {
				line += fmt.Sprintf(" *(%s)*", kw.Category)
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from storyloom on %s*\n",
		doc.ExportedAt.Format("January 2, 2006 at 3:04 PM")))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func (e *MarkdownExporter) formatGroup(g turnGroup) string {
	var sb strings.Builder

	label := escapeMarkdown(render.AuthorLabel(g.Author))
	if e.options.IncludeTimestamps && !g.Turns[0].Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf("### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(g.Turns[0].Timestamp)))
	} else {
		sb.WriteString(fmt.Sprintf("### %s\n\n", label))
	}

	for _, t := range g.Turns {
		content := strings.TrimSpace(t.Content)
		switch g.Author {
		case model.AuthorNarrator:
			content = quote(content)
		case model.AuthorThought:
			content = "*" + content + "*"
		}
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// quote renders narration as a blockquote.
func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	// Only escape characters that would break formatting in titles/headings
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
