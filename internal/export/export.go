// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/util"
)

// ErrEmptyConversation is returned when there is nothing to export.
var ErrEmptyConversation = errors.New("conversation has no turns")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation to one output format.
type Exporter interface {
	// Export converts a conversation to the target format and returns the content.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Format names an export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the usual spellings of each format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", errors.Errorf("unsupported export format: %s", s)
	}
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// IncludeMetadata includes a header with dates and turn count.
	IncludeMetadata bool

	// IncludeTimestamps includes per-turn timestamps.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "light",
	}
}

// New returns the exporter for format.
func New(format Format, opts *Options) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownExporter(opts), nil
	case FormatHTML:
		return NewHTMLExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	default:
		return nil, errors.Errorf("unsupported export format: %s", format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// Write exports conv in format to path. An empty path or a directory gets a
// generated file name. It returns the path written.
func Write(conv *model.Conversation, format Format, path string, opts *Options) (string, error) {
	exporter, err := New(format, opts)
	if err != nil {
		return "", err
	}
	content, err := exporter.Export(conv)
	if err != nil {
		return "", errors.Wrap(err, "export failed")
	}

	if path == "" {
		path = "."
	}
	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		path = filepath.Join(path, FileName(conv, exporter, time.Now()))
	}

	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return "", errors.Wrap(err, "write file")
	}
	return path, nil
}

// Markdown exports conv as Markdown with default options.
func Markdown(conv *model.Conversation) ([]byte, error) {
	return NewMarkdownExporter(nil).Export(conv)
}

// HTML exports conv as a standalone HTML page with default options.
func HTML(conv *model.Conversation) ([]byte, error) {
	return NewHTMLExporter(nil).Export(conv)
}

// JSON exports conv as indented JSON.
func JSON(conv *model.Conversation) ([]byte, error) {
	return NewJSONExporter(nil).Export(conv)
}

// FileName builds "conversation_<title>_<timestamp><ext>".
func FileName(conv *model.Conversation, exporter Exporter, now time.Time) string {
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(titleOf(conv)),
		now.Format("20060102_150405"),
		exporter.FileExtension(),
	)
}

func validate(conv *model.Conversation) error {
	if conv == nil {
		return errors.New("conversation is nil")
	}
	if conv.IsEmpty() {
		return ErrEmptyConversation
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func titleOf(conv *model.Conversation) string {
	if conv.Title != "" {
		return conv.Title
	}
	if first := conv.FirstUserText(); first != "" {
		return util.TruncateRunes(util.FirstLine(first), 50)
	}
	return "Conversation"
}

// sanitizeFilename removes or replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	runes := []rune(s)
	if len(runes) > 50 {
		runes = runes[:50]
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
		return "conversation"
	}
	return string(result)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}

// attachmentNotes lists the inline attachments of a turn.
func attachmentNotes(turn model.Turn) []string {
	var notes []string
	for _, p := range turn.Parts {
		if p.InlineData != nil {
			notes = append(notes, fmt.Sprintf("[attachment: %s]", p.InlineData.MIMEType))
		}
	}
	return notes
}
