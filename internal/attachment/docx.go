// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/pkg/errors"
)

const (
	docxBody     = "word/document.xml"
	maxDocxBytes = 64 * 1024 * 1024
)

// extractDOCX returns the raw text of a DOCX document: the runs of each
// paragraph concatenated, paragraphs separated by blank lines. Table cells
// in a row are joined by " | ", one row per line.
func extractDOCX(data []byte) (string, error) {
	if err := checkDOCXBody(data); err != nil {
		return "", err
	}

	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Wrap(err, "parse docx")
	}

	var blocks []string
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			blocks = append(blocks, paragraphText(it))
		case *docx.Table:
			blocks = append(blocks, tableText(it))
		}
	}

	return strings.TrimSpace(strings.Join(blocks, "\n\n")), nil
}

// checkDOCXBody rejects archives without a document body or whose body
// inflates past maxDocxBytes.
func checkDOCXBody(data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrap(err, "open docx archive")
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		if f.UncompressedSize64 > maxDocxBytes {
			return errors.Errorf("docx body is %d bytes, limit %d", f.UncompressedSize64, maxDocxBytes)
		}
		return nil
	}
	return errors.Errorf("docx archive has no %s", docxBody)
}

func paragraphText(p *docx.Paragraph) string {
	var sb strings.Builder
	for _, child := range p.Children {
		switch c := child.(type) {
		case *docx.Run:
			writeRun(&sb, c)
		case *docx.Hyperlink:
			writeRun(&sb, &c.Run)
		}
	}
	return sb.String()
}

func writeRun(sb *strings.Builder, r *docx.Run) {
	for _, child := range r.Children {
		switch c := child.(type) {
		case *docx.Text:
			sb.WriteString(c.Text)
		case *docx.Tab:
			sb.WriteByte('\t')
		case *docx.BarterRabbet:
			sb.WriteByte('\n')
		}
	}
}

func tableText(t *docx.Table) string {
	rows := make([]string, 0, len(t.TableRows))
	for _, row := range t.TableRows {
		cells := make([]string, 0, len(row.TableCells))
		for _, cell := range row.TableCells {
			parts := make([]string, 0, len(cell.Paragraphs))
			for _, p := range cell.Paragraphs {
				if text := strings.TrimSpace(paragraphText(p)); text != "" {
					parts = append(parts, text)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}
