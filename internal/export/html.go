// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/render"
	"github.com/jeranaias/storyloom/internal/ui/styles"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports stories to a self-contained HTML page.
type HTMLExporter struct {
	options *Options
	policy  *bluemonday.Policy
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		policy:  bluemonday.UGCPolicy(),
	}
}

// Export converts a document to a standalone HTML page.
func (e *HTMLExporter) Export(doc *Document) ([]byte, error) {
	if err := validate(doc); err != nil {
		return nil, err
	}

	themeClass := "dark-theme"
	if e.options.Theme == "light" {
		themeClass = "light-theme"
	}

	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString("    <meta name=\"generator\" content=\"storyloom\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(doc.Title)))
	sb.WriteString(e.css())
	sb.WriteString(e.authorCSS(doc))
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s\">\n", themeClass))
	sb.WriteString("<div class=\"container\">\n")

	// Header
	sb.WriteString("<header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("    <h1>%s</h1>\n", html.EscapeString(doc.Title)))
	if e.options.IncludeMetadata {
		sb.WriteString("    <div class=\"metadata\">\n")
		if started := doc.Started(); !started.IsZero() {
			sb.WriteString(fmt.Sprintf("        <span class=\"meta-item\">Started %s</span>\n", html.EscapeString(formatTimestamp(started))))
		}
		sb.WriteString(fmt.Sprintf("        <span class=\"meta-item\">%d turns</span>\n", len(doc.Turns)))
		sb.WriteString(fmt.Sprintf("        <span class=\"meta-item\">%d images</span>\n", len(doc.Images)))
		sb.WriteString("    </div>\n")
	}
	sb.WriteString("</header>\n")

	// Story
	sb.WriteString("<main class=\"story\">\n")
	for _, g := range groupTurns(doc.Turns) {
		sb.WriteString(e.formatGroup(g))
	}
	sb.WriteString("</main>\n")

	if e.options.IncludeImages && len(doc.Images) > 0 {
		sb.WriteString(e.formatImages(doc.Images))
	}

	if e.options.IncludeMetadata && len(doc.Keywords) > 0 {
		sb.WriteString(e.formatKeywords(doc))
	}

	sb.WriteString("<footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("    Exported from storyloom on %s\n",
		html.EscapeString(doc.ExportedAt.Format("January 2, 2006 at 3:04 PM"))))
	sb.WriteString("</footer>\n")
	sb.WriteString("</div>\n</body>\n</html>\n")

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// CONTENT FORMATTING
// =============================================================================

func (e *HTMLExporter) formatGroup(g turnGroup) string {
	var sb strings.Builder

	classes := "group " + authorClass(g.Author)
	switch g.Author {
	case model.AuthorNarrator:
		classes += " narrator"
	case model.AuthorThought:
		classes += " thought"
	}

	sb.WriteString(fmt.Sprintf("<section class=\"%s\">\n", classes))
	sb.WriteString("    <div class=\"group-header\">\n")
	sb.WriteString(fmt.Sprintf("        <span class=\"author\">%s</span>\n", html.EscapeString(render.AuthorLabel(g.Author))))
	if e.options.IncludeTimestamps && !g.Turns[0].Timestamp.IsZero() {
		ts := g.Turns[0].Timestamp
		sb.WriteString(fmt.Sprintf("        <time datetime=\"%s\">%s</time>\n",
			ts.Format(time.RFC3339), formatShortTimestamp(ts)))
	}
	sb.WriteString("    </div>\n")

	for _, t := range g.Turns {
		sb.WriteString(fmt.Sprintf("    <div class=\"turn\" id=\"turn-%s\">%s</div>\n",
			html.EscapeString(t.ID), e.formatContent(t.Content)))
	}
	sb.WriteString("</section>\n")
	return sb.String()
}

// formatContent turns plain turn text into paragraphs. Server text may carry
// markup, so it is sanitized rather than fully escaped.
func (e *HTMLExporter) formatContent(content string) string {
	// SECURITY: strip scripts, handlers and javascript: URLs from remote text
	clean := e.policy.Sanitize(strings.TrimSpace(content))

	paragraphs := strings.Split(clean, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, "<p>"+strings.ReplaceAll(p, "\n", "<br>")+"</p>")
	}
	return strings.Join(out, "")
}

func (e *HTMLExporter) formatImages(images []model.GeneratedImage) string {
	var sb strings.Builder
	sb.WriteString("<section class=\"illustrations\">\n")
	sb.WriteString("    <h2>Illustrations</h2>\n")
	for _, img := range images {
		// SECURITY: image URLs come from the server; let the policy vet them
		tag := fmt.Sprintf("<img src=\"%s\" alt=\"%s\" loading=\"lazy\">",
			html.EscapeString(img.URL), html.EscapeString(img.Prompt))
		sb.WriteString("    <figure>\n")
		sb.WriteString("        " + e.policy.Sanitize(tag) + "\n")
		if img.Prompt != "" {
			sb.WriteString(fmt.Sprintf("        <figcaption>%s</figcaption>\n", html.EscapeString(img.Prompt)))
		}
		sb.WriteString("    </figure>\n")
	}
	sb.WriteString("</section>\n")
	return sb.String()
}

func (e *HTMLExporter) formatKeywords(doc *Document) string {
	selected := make(map[string]bool, len(doc.Selected))
	for _, s := range doc.Selected {
		selected[s] = true
	}

	var sb strings.Builder
	sb.WriteString("<section class=\"keywords\">\n")
	sb.WriteString("    <h2>Keywords</h2>\n    <ul>\n")
	for _, kw := range doc.Keywords {
		class := "chip"
		if selected[kw.Text] {
			class += " selected"
		}
		label := html.EscapeString(kw.Text)
		if kw.Category != "" {
			label += fmt.Sprintf(" <small>%s</small>", html.EscapeString(string(kw.Category)))
		}
		sb.WriteString(fmt.Sprintf("        <li class=\"%s\">%s</li>\n", class, label))
	}
	sb.WriteString("    </ul>\n</section>\n")
	return sb.String()
}

// authorClass names the CSS class carrying an author's palette color.
func authorClass(author model.Author) string {
	idx := render.AuthorColor(author)
	if idx < 0 {
		return "author-narrator"
	}
	return fmt.Sprintf("author-%d", idx)
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

// authorCSS emits one rule per palette color used in the document, matching
// the terminal colors for the export theme.
func (e *HTMLExporter) authorCSS(doc *Document) string {
	pick := func(c lipgloss.AdaptiveColor) string {
		if e.options.Theme == "light" {
			return c.Light
		}
		return c.Dark
	}

	seen := make(map[string]bool)
	var sb strings.Builder
	sb.WriteString("    <style>\n")
	for _, t := range doc.Turns {
		class := authorClass(t.Author)
		if seen[class] {
			continue
		}
		seen[class] = true

		color := pick(styles.NarratorColor)
		if idx := render.AuthorColor(t.Author); idx >= 0 {
			color = pick(styles.AuthorPalette[idx])
		}
		sb.WriteString(fmt.Sprintf("        .%s { border-left-color: %s; }\n", class, color))
		sb.WriteString(fmt.Sprintf("        .%s .author { color: %s; }\n", class, color))
	}
	sb.WriteString("    </style>\n")
	return sb.String()
}

func (e *HTMLExporter) css() string {
	return `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        .dark-theme {
            --bg-primary: #1C1917;
            --bg-secondary: #292524;
            --text-primary: #F5F5F4;
            --text-muted: #A8A29E;
            --border-color: #44403C;
            --accent: #A78BFA;
        }

        .light-theme {
            --bg-primary: #FAFAF9;
            --bg-secondary: #FFFFFF;
            --text-primary: #1C1917;
            --text-muted: #78716C;
            --border-color: #E7E5E4;
            --accent: #7C3AED;
        }

        body {
            font-family: Georgia, "Iowan Old Style", "Palatino Linotype", serif;
            font-size: 17px;
            line-height: 1.7;
            color: var(--text-primary);
            background: var(--bg-primary);
            padding: 24px;
        }

        .container {
            max-width: 820px;
            margin: 0 auto;
            background: var(--bg-secondary);
            border-radius: 12px;
            overflow: hidden;
        }

        .header { padding: 32px; border-bottom: 2px solid var(--border-color); }
        .header h1 { font-size: 30px; margin-bottom: 12px; color: var(--accent); }
        .metadata { display: flex; flex-wrap: wrap; gap: 16px; font-size: 14px; color: var(--text-muted); }

        .story { padding: 24px 32px; }
        .group { margin-bottom: 20px; padding-left: 16px; border-left: 4px solid var(--border-color); }
        .group-header { display: flex; gap: 12px; align-items: baseline; margin-bottom: 6px; }
        .author { font-weight: 700; font-family: -apple-system, "Segoe UI", sans-serif; }
        time { font-size: 12px; color: var(--text-muted); }
        .turn p { margin-bottom: 10px; }
        .narrator .turn { font-style: normal; }
        .thought .turn { font-style: italic; color: var(--text-muted); }

        .illustrations, .keywords { padding: 24px 32px; border-top: 1px solid var(--border-color); }
        h2 { font-size: 20px; margin-bottom: 16px; }
        figure { margin-bottom: 20px; }
        figure img { max-width: 100%; border-radius: 8px; }
        figcaption { font-size: 14px; color: var(--text-muted); font-style: italic; }

        .keywords ul { list-style: none; display: flex; flex-wrap: wrap; gap: 8px; }
        .chip { padding: 2px 10px; border: 1px solid var(--border-color); border-radius: 12px; font-size: 14px; }
        .chip.selected { background: var(--accent); color: var(--bg-secondary); border-color: var(--accent); }

        .footer { padding: 16px 32px; font-size: 13px; color: var(--text-muted); text-align: center; }

        @media print {
            body { padding: 0; }
            .container { border-radius: 0; }
        }
    </style>
`
}
