// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Assistant"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

// =============================================================================
// CONTENT PARTS
// =============================================================================

// InlineData is binary content carried inside a turn as base64.
type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Part is a unit of turn content. Exactly one of Text or InlineData is set.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// InlineDataPart returns a part carrying base64-encoded data.
func InlineDataPart(mimeType, base64Data string) Part {
	return Part{InlineData: &InlineData{MIMEType: mimeType, Data: base64Data}}
}

// Empty reports whether the part carries neither text nor data.
func (p Part) Empty() bool {
	return p.Text == "" && (p.InlineData == nil || p.InlineData.Data == "")
}

// IsText reports whether the part carries text.
func (p Part) IsText() bool {
	return p.InlineData == nil
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one message in a conversation.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserTurn creates a user turn from the given parts.
func NewUserTurn(parts ...Part) Turn {
	return newTurn(RoleUser, parts)
}

// NewModelTurn creates a model turn holding a single text reply.
func NewModelTurn(text string) Turn {
	return newTurn(RoleModel, []Part{TextPart(text)})
}

func newTurn(role Role, parts []Part) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
}

// Text returns the turn's text parts joined by newlines.
func (t Turn) Text() string {
	var texts []string
	for _, p := range t.Parts {
		if p.IsText() && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// HasInlineData reports whether the turn carries any inline data part.
func (t Turn) HasInlineData() bool {
	for _, p := range t.Parts {
		if !p.IsText() {
			return true
		}
	}
	return false
}
