// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "",
			want: "",
		},
		{
			name: "plain text is escaped",
			in:   `a < b & "c" 'd'`,
			want: `a &lt; b &amp; &quot;c&quot; &#39;d&#39;`,
		},
		{
			name: "bare url",
			in:   "See https://www.gov.uk/tenancy-deposit-protection for details",
			want: `See <a href="https://www.gov.uk/tenancy-deposit-protection" target="_blank" rel="noopener noreferrer" class="legal-link">www.gov.uk</a> for details`,
		},
		{
			name: "markdown link reduced to url",
			in:   "Read [the act](https://www.legislation.gov.uk/ukpga/2004/34) now",
			want: `Read <a href="https://www.legislation.gov.uk/ukpga/2004/34" target="_blank" rel="noopener noreferrer" class="legal-link">www.legislation.gov.uk</a> now`,
		},
		{
			name: "trailing punctuation excluded from href",
			in:   "Visit https://example.com/page.",
			want: `Visit <a href="https://example.com/page" target="_blank" rel="noopener noreferrer" class="legal-link">example.com</a>.`,
		},
		{
			name: "query string ampersand",
			in:   "https://example.com/s?a=1&b=2",
			want: `<a href="https://example.com/s?a=1&amp;b=2" target="_blank" rel="noopener noreferrer" class="legal-link">example.com</a>`,
		},
		{
			name: "script tags neutralised",
			in:   "<script>alert(1)</script>",
			want: "&lt;script&gt;alert(1)&lt;/script&gt;",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Linkify(tc.in))
		})
	}
}

func TestStyleHeadings(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"h1", "# Title", `<div class="msg-heading level-1">Title</div>`},
		{"h2", "## Section", `<div class="msg-heading level-2">Section</div>`},
		{"h3", "### Sub", `<div class="msg-heading level-3">Sub</div>`},
		{"indented heading", "  ## Indented", `<div class="msg-heading level-2">Indented</div>`},
		{"bold line", "**Your rights**", `<div class="msg-heading">Your rights</div>`},
		{"inline bold", "This is **important** here", "This is <strong>important</strong> here"},
		{"no markers", "just text", "just text"},
		{
			"mixed",
			"## Deposits\nYou **must** be told.\n**Next steps**",
			"<div class=\"msg-heading level-2\">Deposits</div>\nYou <strong>must</strong> be told.\n<div class=\"msg-heading\">Next steps</div>",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StyleHeadings(tc.in))
		})
	}
}

func TestHTMLMarkup(t *testing.T) {
	var m HTMLMarkup
	assert.Equal(t, "**bold** &amp;", m.Partial("**bold** &"))
	assert.Equal(t, `<div class="msg-heading">bold</div>`, m.Final("**bold**"))
}

func TestPlainMarkup(t *testing.T) {
	var m PlainMarkup
	assert.Equal(t, "<b>", m.Partial("<b>"))
	assert.Equal(t, "# x", m.Final("# x"))
}

func TestTerminalMarkup_Unstyled(t *testing.T) {
	m := NewTerminalMarkup(80, false)
	assert.Equal(t, "## Heading", m.Partial("## Heading"))
	assert.Equal(t, "## Heading", m.Final("## Heading"))
}

func TestTerminalMarkup_StyledKeepsText(t *testing.T) {
	m := NewTerminalMarkup(80, true)
	out := m.Final("Tenancy deposits must be protected.")
	assert.Contains(t, out, "Tenancy deposits must be protected.")
}
