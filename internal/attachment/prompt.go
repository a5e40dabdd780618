// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"encoding/base64"

	"github.com/mymckenzie/assistant/internal/model"
)

const (
	// MaxChars caps the extracted text injected into a prompt.
	MaxChars = 12000

	// TruncationMarker is appended when extracted text is cut.
	TruncationMarker = "\n...[truncated]"

	// ContextHeader introduces extracted text in the prompt.
	ContextHeader = "\n\nAttachment context (auto-extracted text):\n"

	// UnsupportedNote is appended when a file yielded no text.
	UnsupportedNote = "\n\n(Note: This file type is not yet supported for text extraction. Please summarize its key points.)"

	// FilePlaceholder is shown for a submission with no text of its own.
	FilePlaceholder = "[File attached]"
)

// Truncate cuts text to maxChars characters and appends TruncationMarker
// when anything was removed.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = MaxChars
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + TruncationMarker
}

// DefaultPrompt is the prompt used when a file is sent without text.
func DefaultPrompt(fileName string) string {
	if fileName == "" {
		return "Please analyze the attached file."
	}
	return `Please analyze the attached file "` + fileName + `".`
}

// Prompt assembles the final prompt text for a submission.
//
// With no file the user's text is returned unchanged. With a file, an empty
// user text is replaced by DefaultPrompt, and then either the extracted text
// (truncated to maxChars) or UnsupportedNote is appended.
func Prompt(userText string, file *File, extracted string, maxChars int) string {
	if file == nil {
		return userText
	}

	prompt := userText
	if prompt == "" {
		prompt = DefaultPrompt(file.Name)
	}
	if extracted != "" {
		return prompt + ContextHeader + Truncate(extracted, maxChars)
	}
	return prompt + UnsupportedNote
}

// BuildParts returns the content parts of a user turn: the prompt text,
// followed by the file as inline data when it is an image.
func BuildParts(userText string, file *File, extracted string, maxChars int) []model.Part {
	prompt := Prompt(userText, file, extracted, maxChars)
	if prompt == "" && file != nil {
		prompt = FilePlaceholder
	}

	parts := []model.Part{model.TextPart(prompt)}
	if file != nil && file.IsImage() && len(file.Data) > 0 {
		parts = append(parts, model.InlineDataPart(file.mimeType(), base64.StdEncoding.EncodeToString(file.Data)))
	}
	return parts
}
