// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/util"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

const (
	// DefaultMaxConversations bounds stored conversations per user in the
	// file backend.
	DefaultMaxConversations = 100

	titleMaxRunes   = 50
	previewMaxRunes = 80
)

var (
	// ErrConversationNotFound is returned when a conversation doesn't exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidID is returned for user or conversation IDs that are empty
	// or contain characters outside [A-Za-z0-9_-].
	ErrInvalidID = errors.New("invalid identifier")

	// ErrUnknownBackend is returned by Open for an unsupported backend.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Store persists conversation turns.
type Store interface {
	// AppendTurn adds turn to the end of the conversation, creating it if
	// needed.
	AppendTurn(ctx context.Context, userID, convID string, turn model.Turn) error
	// Load returns the conversation with its turns in order.
	Load(ctx context.Context, userID, convID string) (*model.Conversation, error)
	// Reset removes every turn of the conversation but keeps it listed.
	Reset(ctx context.Context, userID, convID string) error
	// Delete removes the conversation.
	Delete(ctx context.Context, userID, convID string) error
	// List returns the user's conversations, most recent first.
	List(ctx context.Context, userID string) ([]ConversationMeta, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases resources.
	Close() error
}

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
	Preview   string    `json:"preview"`
}

// Options selects and configures a backend.
type Options struct {
	Backend          string
	Dir              string
	SQLitePath       string
	MaxConversations int
}

// Open returns the Store described by opts.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		if opts.MaxConversations > 0 {
			fs.MaxConversations = opts.MaxConversations
		}
		return fs, nil
	case BackendSQLite:
		return NewSQLiteStore(opts.SQLitePath)
	default:
		return nil, errors.Wrap(ErrUnknownBackend, opts.Backend)
	}
}

// NewConversationID returns a fresh conversation ID.
func NewConversationID() string {
	return "conv_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateID checks id is safe to use as a key and a file name.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.Wrapf(ErrInvalidID, "%q", id)
	}
	return nil
}

func validateIDs(ids ...string) error {
	for _, id := range ids {
		if err := ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}

// titleFor derives a title from the first user turn.
func titleFor(conv *model.Conversation) string {
	text := oneLine(conv.FirstUserText())
	if text == "" {
		return "New conversation"
	}
	return util.TruncateRunes(text, titleMaxRunes)
}

func previewFor(conv *model.Conversation) string {
	return util.TruncateRunes(oneLine(conv.FirstUserText()), previewMaxRunes)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

func metaFor(conv *model.Conversation) ConversationMeta {
	return ConversationMeta{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		TurnCount: len(conv.Turns),
		Preview:   previewFor(conv),
	}
}
