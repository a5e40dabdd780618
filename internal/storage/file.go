// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/util"
)

// FileStore keeps each conversation in its own JSON file.
type FileStore struct {
	// BaseDir holds one sub-directory per user.
	BaseDir string

	// MaxConversations limits stored conversations per user (0 = unlimited).
	MaxConversations int

	mu sync.Mutex
}

// NewFileStore creates a store rooted at baseDir, or ~/.mckenzie/conversations
// when baseDir is empty.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve home directory")
		}
		baseDir = filepath.Join(home, ".mckenzie", "conversations")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.Wrap(err, "create conversation directory")
	}
	return &FileStore{BaseDir: baseDir, MaxConversations: DefaultMaxConversations}, nil
}

// =============================================================================
// WRITE OPERATIONS
// =============================================================================

// AppendTurn implements Store.
func (s *FileStore) AppendTurn(ctx context.Context, userID, convID string, turn model.Turn) error {
	if err := validateIDs(userID, convID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.read(userID, convID)
	if errors.Is(err, ErrConversationNotFound) {
		now := time.Now()
		conv = &model.Conversation{ID: convID, UserID: userID, CreatedAt: now}
	} else if err != nil {
		return err
	}

	conv.Turns = append(conv.Turns, turn)
	if conv.Title == "" || conv.Title == "New conversation" {
		conv.Title = titleFor(conv)
	}
	if err := s.write(conv); err != nil {
		return err
	}

	if s.MaxConversations > 0 {
		s.enforceLimit(userID)
	}
	return nil
}

// Reset implements Store.
func (s *FileStore) Reset(ctx context.Context, userID, convID string) error {
	if err := validateIDs(userID, convID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.read(userID, convID)
	if err != nil {
		return err
	}
	conv.Turns = nil
	conv.Title = ""
	return s.write(conv)
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, userID, convID string) error {
	if err := validateIDs(userID, convID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(userID, convID)
}

func (s *FileStore) remove(userID, convID string) error {
	if err := os.Remove(s.filePath(userID, convID)); err != nil {
		if os.IsNotExist(err) {
			return ErrConversationNotFound
		}
		return errors.Wrap(err, "delete conversation")
	}
	return nil
}

func (s *FileStore) write(conv *model.Conversation) error {
	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal conversation")
	}
	return util.AtomicWriteFile(s.filePath(conv.UserID, conv.ID), data, 0600)
}

// enforceLimit removes the user's oldest conversations beyond the limit.
func (s *FileStore) enforceLimit(userID string) {
	metas, err := s.list(userID)
	if err != nil || len(metas) <= s.MaxConversations {
		return
	}
	// list is newest first
	for _, m := range metas[s.MaxConversations:] {
		if err := s.remove(userID, m.ID); err != nil {
			log.Warn().Err(err).Str("conversation", m.ID).Msg("failed to prune conversation")
		}
	}
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, userID, convID string) (*model.Conversation, error) {
	if err := validateIDs(userID, convID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(userID, convID)
}

func (s *FileStore) read(userID, convID string) (*model.Conversation, error) {
	data, err := os.ReadFile(s.filePath(userID, convID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "read conversation")
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, errors.Wrapf(err, "parse conversation %s", convID)
	}
	return &conv, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context, userID string) ([]ConversationMeta, error) {
	if err := ValidateID(userID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(userID)
}

func (s *FileStore) list(userID string) ([]ConversationMeta, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, userID))
	if err != nil {
		if os.IsNotExist(err) {
			return []ConversationMeta{}, nil
		}
		return nil, errors.Wrap(err, "list conversations")
	}

	metas := make([]ConversationMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.read(userID, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue // Skip corrupted files
		}
		metas = append(metas, metaFor(conv))
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Ping implements Store.
func (s *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(s.BaseDir)
	if err != nil {
		return errors.Wrap(err, "stat conversation directory")
	}
	if !info.IsDir() {
		return errors.Errorf("%s is not a directory", s.BaseDir)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) filePath(userID, convID string) string {
	return filepath.Join(s.BaseDir, userID, convID+".json")
}
