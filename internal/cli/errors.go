// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error reporting and exit codes for mckenzie commands.
//
// Commands always return errors; Execute prints them once and maps them to
// an exit code.

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/config"
	"github.com/mymckenzie/assistant/internal/gemini"
	"github.com/mymckenzie/assistant/internal/orchestrator"
	"github.com/mymckenzie/assistant/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitNetworkError  = 5
	ExitNotFoundError = 7
	ExitInterrupted   = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError wraps a configuration load or validation failure.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DISPLAY AND EXIT CODES
// =============================================================================

// DisplayError prints err to w in the standard format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

// GetExitCode maps an error to the process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		configErr     *ConfigError
		validateErrs  config.ValidateErrors
		transportErr  *gemini.TransportError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &validationErr), errors.Is(err, storage.ErrInvalidID),
		errors.Is(err, attachment.ErrUploadLimitReached):
		return ExitUsageError
	case errors.As(err, &configErr), errors.As(err, &validateErrs), errors.Is(err, gemini.ErrNotConfigured):
		return ExitConfigError
	case errors.As(err, &notFoundErr), errors.Is(err, storage.ErrConversationNotFound):
		return ExitNotFoundError
	case errors.As(err, &transportErr), errors.Is(err, orchestrator.ErrAllModelsExhausted):
		return ExitNetworkError
	}
	return ExitGeneralError
}
