// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// MIME types recognised by the extractor.
const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// textExtensions are plain text types that the system MIME table may lack.
var textExtensions = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".log":      "text/plain",
}

// DefaultMaxPDFPages caps how many PDF pages are read.
const DefaultMaxPDFPages = 30

// File is an uploaded attachment held in memory.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Kind is the extraction strategy for a file.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindPDF
	KindDOCX
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	default:
		return "unsupported"
	}
}

// mimeType returns the declared MIME type, or one guessed from the file
// extension when none was declared.
func (f File) mimeType() string {
	t := strings.ToLower(strings.TrimSpace(f.MIMEType))
	if t == "" || t == "application/octet-stream" {
		ext := strings.ToLower(filepath.Ext(f.Name))
		if known, ok := textExtensions[ext]; ok {
			t = known
		} else {
			t = strings.ToLower(mime.TypeByExtension(ext))
		}
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// IsImage reports whether the file is an image.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.mimeType(), "image/")
}

// KindOf returns the extraction strategy for f.
func KindOf(f File) Kind {
	t := f.mimeType()
	name := strings.ToLower(f.Name)

	switch {
	case strings.HasPrefix(t, "text/"):
		return KindText
	case t == MIMEPDF || strings.HasSuffix(name, ".pdf"):
		return KindPDF
	case t == MIMEDOCX || strings.HasSuffix(name, ".docx"):
		return KindDOCX
	default:
		return KindUnsupported
	}
}

// =============================================================================
// EXTRACTOR
// =============================================================================

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxPDFPages sets the PDF page cap.
func WithMaxPDFPages(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPDFPages = n
		}
	}
}

// Extractor turns attachments into plain text.
type Extractor struct {
	maxPDFPages int
	openPDF     func(data []byte) (pageSource, error)
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		maxPDFPages: DefaultMaxPDFPages,
		openPDF:     openPDF,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the plain text of f, or "" when the type is unsupported
// or the document cannot be read.
func (e *Extractor) Extract(f File) string {
	kind := KindOf(f)

	var (
		text string
		err  error
	)
	switch kind {
	case KindText:
		text = decodeText(f.Data)
	case KindPDF:
		text, err = e.extractPDF(f.Data)
	case KindDOCX:
		text, err = extractDOCX(f.Data)
	default:
		return ""
	}

	if err != nil {
		log.Warn().Err(err).Str("file", f.Name).Stringer("kind", kind).Msg("attachment extraction failed")
		return ""
	}
	return text
}
