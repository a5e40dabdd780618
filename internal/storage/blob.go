// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mymckenzie/assistant/internal/util"
)

// MaxUploadSize is the largest attachment accepted by BlobStore.
const MaxUploadSize = 20 * 1024 * 1024

// ErrUploadTooLarge is returned for attachments above MaxUploadSize.
var ErrUploadTooLarge = errors.New("upload too large")

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Upload describes a stored attachment.
type Upload struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// BlobStore writes uploaded attachments under a directory, one
// sub-directory per user.
type BlobStore struct {
	BaseDir string
}

// NewBlobStore creates a blob store rooted at baseDir.
func NewBlobStore(baseDir string) (*BlobStore, error) {
	if baseDir == "" {
		return nil, errors.New("blob store directory is required")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.Wrap(err, "create upload directory")
	}
	return &BlobStore{BaseDir: baseDir}, nil
}

// Put stores data for userID and returns where it went.
func (b *BlobStore) Put(ctx context.Context, userID, name string, data []byte) (Upload, error) {
	if err := ValidateID(userID); err != nil {
		return Upload{}, err
	}
	if len(data) > MaxUploadSize {
		return Upload{}, errors.Wrapf(ErrUploadTooLarge, "%d bytes", len(data))
	}
	if err := ctx.Err(); err != nil {
		return Upload{}, err
	}

	key := uuid.NewString() + "-" + SafeFileName(name)
	path := filepath.Join(b.BaseDir, userID, key)
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return Upload{}, errors.Wrap(err, "write upload")
	}

	return Upload{Key: key, Name: name, Path: path, Size: int64(len(data))}, nil
}

// Get reads a stored upload back.
func (b *BlobStore) Get(userID, key string) ([]byte, error) {
	if err := ValidateID(userID); err != nil {
		return nil, err
	}
	if key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return nil, errors.Wrapf(ErrInvalidID, "%q", key)
	}
	data, err := os.ReadFile(filepath.Join(b.BaseDir, userID, key))
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	return data, nil
}

// SafeFileName reduces name to characters safe in a file name.
func SafeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.Trim(unsafeNameChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "attachment"
	}
	return util.TruncateRunes(name, 100)
}
