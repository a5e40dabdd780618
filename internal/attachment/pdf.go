// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// pageSource is a paginated document.
type pageSource interface {
	NumPage() int
	// PageText returns the text of page num, 1-based.
	PageText(num int) (string, error)
}

type pdfDocument struct {
	r *pdf.Reader
}

func openPDF(data []byte) (src pageSource, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			src, err = nil, fmt.Errorf("pdf parser panic: %v", p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "open pdf")
	}
	return &pdfDocument{r: r}, nil
}

func (d *pdfDocument) NumPage() int {
	return d.r.NumPage()
}

func (d *pdfDocument) PageText(num int) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("pdf page %d: parser panic: %v", num, p)
		}
	}()

	page := d.r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// extractPDF returns the text of the first maxPDFPages pages, one block per
// page separated by blank lines. A page that fails to parse is skipped; a
// document that cannot be opened is an error.
func (e *Extractor) extractPDF(data []byte) (string, error) {
	doc, err := e.openPDF(data)
	if err != nil {
		return "", err
	}

	pages := doc.NumPage()
	if pages > e.maxPDFPages {
		pages = e.maxPDFPages
	}

	var b strings.Builder
	for num := 1; num <= pages; num++ {
		text, err := doc.PageText(num)
		if err != nil {
			log.Debug().Err(err).Int("page", num).Msg("skipping unreadable pdf page")
			continue
		}
		b.WriteString(strings.Join(strings.Fields(text), " "))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
