// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/mymckenzie/assistant/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    user_id    TEXT NOT NULL,
    id         TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS turns (
    seq             INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id         TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    id              TEXT NOT NULL,
    role            TEXT NOT NULL,
    parts           TEXT NOT NULL,
    created_at      INTEGER NOT NULL,
    FOREIGN KEY (user_id, conversation_id)
        REFERENCES conversations (user_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns (user_id, conversation_id, seq);
`

// SQLiteStore keeps conversations in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path, or
// ~/.mckenzie/mckenzie.db when path is empty.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "resolve home directory")
		}
		path = filepath.Join(home, ".mckenzie", "mckenzie.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "set %s", pragma)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}

	return &SQLiteStore{db: db}, nil
}

// AppendTurn implements Store.
func (s *SQLiteStore) AppendTurn(ctx context.Context, userID, convID string, turn model.Turn) error {
	if err := validateIDs(userID, convID); err != nil {
		return err
	}

	parts, err := json.Marshal(turn.Parts)
	if err != nil {
		return errors.Wrap(err, "marshal parts")
	}
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	now := time.Now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (user_id, id, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, id) DO UPDATE SET updated_at = excluded.updated_at`,
		userID, convID, now, now); err != nil {
		return errors.Wrap(err, "upsert conversation")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (user_id, conversation_id, id, role, parts, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		userID, convID, turn.ID, string(turn.Role), string(parts), createdAt.UnixNano()); err != nil {
		return errors.Wrap(err, "insert turn")
	}

	if turn.Role == model.RoleUser {
		if text := oneLine(turn.Text()); text != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE conversations SET title = ? WHERE user_id = ? AND id = ? AND title = ''`,
				titleFor(&model.Conversation{Turns: []model.Turn{turn}}), userID, convID); err != nil {
				return errors.Wrap(err, "set title")
			}
		}
	}

	return errors.Wrap(tx.Commit(), "commit")
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, userID, convID string) (*model.Conversation, error) {
	if err := validateIDs(userID, convID); err != nil {
		return nil, err
	}

	var (
		conv               = &model.Conversation{ID: convID, UserID: userID}
		createdAt, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at FROM conversations WHERE user_id = ? AND id = ?`,
		userID, convID).Scan(&conv.Title, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load conversation")
	}
	conv.CreatedAt = time.Unix(0, createdAt)
	conv.UpdatedAt = time.Unix(0, updated)

	turns, err := s.loadTurns(ctx, userID, convID)
	if err != nil {
		return nil, err
	}
	conv.Turns = turns
	if conv.Title == "" {
		conv.Title = titleFor(conv)
	}
	return conv, nil
}

func (s *SQLiteStore) loadTurns(ctx context.Context, userID, convID string) ([]model.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, parts, created_at FROM turns
		WHERE user_id = ? AND conversation_id = ?
		ORDER BY seq`, userID, convID)
	if err != nil {
		return nil, errors.Wrap(err, "query turns")
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var (
			t         model.Turn
			role      string
			parts     string
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &role, &parts, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan turn")
		}
		if err := json.Unmarshal([]byte(parts), &t.Parts); err != nil {
			return nil, errors.Wrapf(err, "parse parts of turn %s", t.ID)
		}
		t.Role = model.Role(role)
		t.CreatedAt = time.Unix(0, createdAt)
		turns = append(turns, t)
	}
	return turns, errors.Wrap(rows.Err(), "iterate turns")
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context, userID, convID string) error {
	if err := validateIDs(userID, convID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET title = '', updated_at = ? WHERE user_id = ? AND id = ?`,
		time.Now().UnixNano(), userID, convID)
	if err != nil {
		return errors.Wrap(err, "reset conversation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM turns WHERE user_id = ? AND conversation_id = ?`, userID, convID); err != nil {
		return errors.Wrap(err, "delete turns")
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, userID, convID string) error {
	if err := validateIDs(userID, convID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE user_id = ? AND id = ?`, userID, convID)
	if err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]ConversationMeta, error) {
	if err := ValidateID(userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.user_id = c.user_id AND t.conversation_id = c.id)
		FROM conversations c
		WHERE c.user_id = ?
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	metas := []ConversationMeta{}
	for rows.Next() {
		var (
			m                  ConversationMeta
			createdAt, updated int64
		)
		if err := rows.Scan(&m.ID, &m.Title, &createdAt, &updated, &m.TurnCount); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		m.CreatedAt = time.Unix(0, createdAt)
		m.UpdatedAt = time.Unix(0, updated)
		if m.Title == "" {
			m.Title = "New conversation"
		}
		m.Preview = m.Title
		metas = append(metas, m)
	}
	return metas, errors.Wrap(rows.Err(), "iterate conversations")
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping database")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
