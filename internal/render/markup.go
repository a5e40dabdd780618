// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	bareURLRe      = regexp.MustCompile(`https?://[^\s<)>\]]+`)
	trailingPunct  = regexp.MustCompile(`[.,:;!?)\]}]+$`)

	heading3Re   = regexp.MustCompile(`(?m)^\s*###\s+(.+)$`)
	heading2Re   = regexp.MustCompile(`(?m)^\s*##\s+(.+)$`)
	heading1Re   = regexp.MustCompile(`(?m)^\s*#\s+(.+)$`)
	boldLineRe   = regexp.MustCompile(`(?m)^\s*\*\*(.+?)\*\*\s*$`)
	inlineBoldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five HTML-significant characters.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// Linkify escapes text for HTML and turns every http(s) URL into an anchor
// labelled with the URL's hostname.
//
// Markdown links "[label](url)" are reduced to their URL first. Trailing
// punctuation is kept out of the href and left as text after the anchor.
func Linkify(text string) string {
	if text == "" {
		return ""
	}

	text = markdownLinkRe.ReplaceAllString(text, "${2}")
	escaped := EscapeHTML(text)

	return bareURLRe.ReplaceAllStringFunc(escaped, func(match string) string {
		raw := strings.ReplaceAll(match, "&amp;", "&")
		href := trailingPunct.ReplaceAllString(raw, "")
		trailing := raw[len(href):]

		var b strings.Builder
		b.WriteString(`<a href="`)
		b.WriteString(EscapeHTML(href))
		b.WriteString(`" target="_blank" rel="noopener noreferrer" class="legal-link">`)
		b.WriteString(EscapeHTML(hostnameFor(href)))
		b.WriteString(`</a>`)
		b.WriteString(EscapeHTML(trailing))
		return b.String()
	})
}

func hostnameFor(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.Hostname() == "" {
		return href
	}
	return u.Hostname()
}

// StyleHeadings converts markdown-like headings and bold text in already
// escaped HTML into styled blocks.
//
//	"### X" / "## X" / "# X"  -> <div class="msg-heading level-N">X</div>
//	"**X**" alone on a line   -> <div class="msg-heading">X</div>
//	"**x**" inline            -> <strong>x</strong>
func StyleHeadings(html string) string {
	if html == "" {
		return ""
	}
	out := heading3Re.ReplaceAllString(html, `<div class="msg-heading level-3">${1}</div>`)
	out = heading2Re.ReplaceAllString(out, `<div class="msg-heading level-2">${1}</div>`)
	out = heading1Re.ReplaceAllString(out, `<div class="msg-heading level-1">${1}</div>`)
	out = boldLineRe.ReplaceAllString(out, `<div class="msg-heading">${1}</div>`)
	out = inlineBoldRe.ReplaceAllString(out, `<strong>${1}</strong>`)
	return out
}

// =============================================================================
// MARKUP IMPLEMENTATIONS
// =============================================================================

// HTMLMarkup renders for browser sinks.
type HTMLMarkup struct{}

// Partial linkifies the accumulated prefix.
func (HTMLMarkup) Partial(accumulated string) string {
	return Linkify(accumulated)
}

// Final linkifies and styles the complete text.
func (HTMLMarkup) Final(text string) string {
	return StyleHeadings(Linkify(text))
}

// PlainMarkup passes text through unchanged.
type PlainMarkup struct{}

// Partial returns accumulated unchanged.
func (PlainMarkup) Partial(accumulated string) string { return accumulated }

// Final returns text unchanged.
func (PlainMarkup) Final(text string) string { return text }
