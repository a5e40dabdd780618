// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// Outcome classifies a single generation attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable-failure"
	OutcomeFatal     Outcome = "fatal-failure"
)

// Attempt records one call to one model during a generation.
type Attempt struct {
	Model    string        `json:"model"`
	Number   int           `json:"number"` // 0-based within the model
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}
