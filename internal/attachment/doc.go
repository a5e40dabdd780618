// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attachment extracts plain text from user-supplied files and folds
// it into the prompt sent with a user turn.
//
// Extraction never fails from the caller's point of view: unsupported types
// and unreadable documents yield an empty string, and the prompt then carries
// a note asking the model to work from the file itself.
//
// # Supported Types
//
//   - text/*: decoded as UTF-8, UTF-16 (with BOM) or Windows-1252
//   - PDF (application/pdf or .pdf): text of the first 30 pages
//   - DOCX (wordprocessingml MIME or .docx): raw paragraph text
//   - images: no text, but sent to the model as inline data
//
// # Usage
//
//	ex := attachment.NewExtractor()
//	text := ex.Extract(file)
//	parts := attachment.BuildParts(userText, &file, text, attachment.MaxChars)
package attachment
