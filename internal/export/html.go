// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mymckenzie/assistant/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page. Turn text is
// rendered as Markdown and sanitized, so model output cannot inject markup.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
	policy  *bluemonday.Policy
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:  policy,
	}
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	theme := e.options.Theme
	if theme != "dark" {
		theme = "light"
	}
	title := titleOf(conv)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", html.EscapeString(title)))
	sb.WriteString("    <meta name=\"generator\" content=\"mckenzie\">\n")
	sb.WriteString(css)
	sb.WriteString("</head>\n")
	sb.WriteString(fmt.Sprintf("<body class=\"%s-theme\">\n", theme))
	sb.WriteString("    <div class=\"container\">\n")

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(conv, title))
	}

	sb.WriteString("        <main class=\"conversation\">\n")
	for _, turn := range conv.Turns {
		body, err := e.renderTurn(turn)
		if err != nil {
			return nil, err
		}
		sb.WriteString(body)
	}
	sb.WriteString("        </main>\n")

	sb.WriteString("        <footer class=\"footer\">\n")
	sb.WriteString(fmt.Sprintf("            <p>Exported from <strong>MyMcKenzie</strong> on %s</p>\n",
		time.Now().Format("January 2, 2006 at 3:04 PM")))
	sb.WriteString("        </footer>\n")
	sb.WriteString("    </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

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
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(conv *model.Conversation, title string) string {
	var sb strings.Builder
	sb.WriteString("        <header class=\"header\">\n")
	sb.WriteString(fmt.Sprintf("            <h1>%s</h1>\n", html.EscapeString(title)))
	sb.WriteString("            <div class=\"metadata\">\n")
	if !conv.CreatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("                <span>Created: %s</span>\n", formatTimestamp(conv.CreatedAt)))
	}
	sb.WriteString(fmt.Sprintf("                <span>Turns: %d</span>\n", conv.TurnCount()))
	sb.WriteString("            </div>\n")
	sb.WriteString("        </header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderTurn(turn model.Turn) (string, error) {
	content, err := e.Markdown(turn.Text())
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("            <article class=\"turn %s\">\n", html.EscapeString(turn.Role.String())))
	sb.WriteString("                <div class=\"turn-header\">\n")
	sb.WriteString(fmt.Sprintf("                    <span class=\"role\">%s</span>\n", html.EscapeString(turn.Role.DisplayName())))
	if e.options.IncludeTimestamps && !turn.CreatedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("                    <span class=\"time\">%s</span>\n", formatShortTimestamp(turn.CreatedAt)))
	}
	sb.WriteString("                </div>\n")
	sb.WriteString("                <div class=\"turn-body\">\n")
	sb.WriteString(content)
	sb.WriteString("                </div>\n")
	for _, note := range attachmentNotes(turn) {
		sb.WriteString(fmt.Sprintf("                <p class=\"attachment\">%s</p>\n", html.EscapeString(note)))
	}
	sb.WriteString("            </article>\n")
	return sb.String(), nil
}

// Markdown renders Markdown text to sanitized HTML.
func (e *HTMLExporter) Markdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(text), &buf); err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return e.policy.Sanitize(buf.String()), nil
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const css = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        .light-theme { --bg: #ffffff; --panel: #f5f6f8; --text: #1f2328; --muted: #6e7781; --accent: #1a4d8f; --user: #e8f0fe; }
        .dark-theme { --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89; --accent: #7aa2f7; --user: #1f2335; }
        body { background: var(--bg); color: var(--text); font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; line-height: 1.6; }
        .container { max-width: 860px; margin: 0 auto; padding: 2rem 1rem; }
        .header h1 { font-size: 1.6rem; margin-bottom: 0.5rem; }
        .metadata { color: var(--muted); font-size: 0.9rem; display: flex; gap: 1.5rem; margin-bottom: 1.5rem; }
        .turn { background: var(--panel); border-radius: 8px; padding: 1rem 1.25rem; margin-bottom: 1rem; }
        .turn.user { background: var(--user); }
        .turn-header { display: flex; justify-content: space-between; font-weight: 600; margin-bottom: 0.5rem; }
        .turn-header .time { color: var(--muted); font-weight: 400; font-size: 0.85rem; }
        .turn-body p, .turn-body ul, .turn-body ol { margin-bottom: 0.75rem; }
        .turn-body a { color: var(--accent); }
        .turn-body pre { overflow-x: auto; padding: 0.75rem; background: var(--bg); border-radius: 6px; }
        .attachment { color: var(--muted); font-style: italic; }
        .footer { color: var(--muted); font-size: 0.85rem; text-align: center; margin-top: 2rem; }
    </style>
`
