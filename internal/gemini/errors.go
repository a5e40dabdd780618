// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotConfigured indicates neither an API key nor a proxy is set.
	ErrNotConfigured = errors.New("gemini API key not configured")

	// ErrMalformedResponse indicates a 2xx response without candidate text.
	ErrMalformedResponse = errors.New("malformed response: no candidate text")
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status  int
	Message string
	Body    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("gemini error (HTTP %d): %s", e.Status, e.Message)
}

// TransportError is a failure that produced no HTTP response.
type TransportError struct {
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return "gemini request failed: " + e.Err.Error()
}

// Unwrap returns the underlying network error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// =============================================================================
// RETRY CLASSIFICATION
// =============================================================================

// Classifier reports whether a failed attempt is transient and may be
// retried against the same model.
type Classifier func(err error) bool

// Default retry classification inputs.
var (
	DefaultRetryableStatuses = []int{http.StatusTooManyRequests, http.StatusServiceUnavailable}
	DefaultRetryablePatterns = []string{"overload", "busy", "try again later"}
)

// DefaultClassifier retries rate limiting, unavailability, overload messages
// and network failures.
var DefaultClassifier = NewClassifier(DefaultRetryableStatuses, DefaultRetryablePatterns)

// NewClassifier builds a Classifier that treats the given HTTP statuses as
// transient, as well as any provider message matching one of patterns
// (case-insensitive substring), whatever its status. Transport errors are
// always transient; context cancellation and malformed responses never are.
func NewClassifier(statuses []int, patterns []string) Classifier {
	statusSet := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		statusSet[s] = true
	}

	var re *regexp.Regexp
	if len(patterns) > 0 {
		quoted := make([]string, 0, len(patterns))
		for _, p := range patterns {
			if p = strings.TrimSpace(p); p != "" {
				quoted = append(quoted, regexp.QuoteMeta(p))
			}
		}
		if len(quoted) > 0 {
			re = regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
		}
	}

	return func(err error) bool {
		if err == nil {
			return false
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if statusSet[apiErr.Status] {
				return true
			}
			return re != nil && (re.MatchString(apiErr.Message) || re.MatchString(apiErr.Body))
		}

		// Client timeouts arrive as TransportError; caller cancellation
		// arrives bare and is final.
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			return true
		}
		return false
	}
}
