// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mymckenzie/assistant/internal/model"
)

var (
	// ErrNonRetryable matches a GenerationError ended by a non-transient
	// failure.
	ErrNonRetryable = errors.New("non-retryable provider error")

	// ErrAllModelsExhausted matches a GenerationError where every model
	// used up its retries.
	ErrAllModelsExhausted = errors.New("all models exhausted")

	// ErrNoModels indicates an empty model list.
	ErrNoModels = errors.New("no models configured")

	// ErrEmptyHistory indicates there is nothing to generate a reply for.
	ErrEmptyHistory = errors.New("conversation history is empty")
)

// Kind is the terminal failure category of a generation.
type Kind int

const (
	KindNonRetryable Kind = iota
	KindAllModelsExhausted
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNonRetryable:
		return "NonRetryableProviderError"
	case KindAllModelsExhausted:
		return "AllModelsExhausted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// GenerationError is the terminal failure of Generate.
type GenerationError struct {
	Kind     Kind
	Model    string          // model of the last attempt
	Attempts []model.Attempt // every attempt made, in order
	Err      error           // last provider error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	switch e.Kind {
	case KindAllModelsExhausted:
		return fmt.Sprintf("all models exhausted after %d attempts: %v", len(e.Attempts), e.Err)
	default:
		return fmt.Sprintf("non-retryable provider error from %s: %v", e.Model, e.Err)
	}
}

// Unwrap returns the last provider error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *GenerationError) Is(target error) bool {
	switch target {
	case ErrNonRetryable:
		return e.Kind == KindNonRetryable
	case ErrAllModelsExhausted:
		return e.Kind == KindAllModelsExhausted
	}
	return false
}
