// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attachment

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultFreeUploadLimit is the number of uploads allowed on the free plan.
const DefaultFreeUploadLimit = 3

// ErrUploadLimitReached is returned when a free-plan user has used every
// upload.
var ErrUploadLimitReached = errors.New("free plan upload limit reached")

// Quota counts attachment uploads for one user session. Premium sessions are
// unlimited.
type Quota struct {
	mu      sync.Mutex
	limit   int
	premium bool
	used    int
}

// NewQuota creates a quota allowing limit uploads, or unlimited uploads when
// premium is set.
func NewQuota(limit int, premium bool) *Quota {
	if limit < 0 {
		limit = DefaultFreeUploadLimit
	}
	return &Quota{limit: limit, premium: premium}
}

// Reserve consumes one upload.
func (q *Quota) Reserve() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.premium {
		return nil
	}
	if q.used >= q.limit {
		return errors.Wrapf(ErrUploadLimitReached, "%d of %d used", q.used, q.limit)
	}
	q.used++
	return nil
}

// Release returns an upload, e.g. when the user removes a pending file.
func (q *Quota) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.premium && q.used > 0 {
		q.used--
	}
}

// Remaining returns the uploads left, or -1 when unlimited.
func (q *Quota) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.premium {
		return -1
	}
	return q.limit - q.used
}
