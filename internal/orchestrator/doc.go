// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator produces one model reply for a conversation, retrying
// transient failures and falling back across an ordered list of models.
//
// For each model in order, up to RetryCeiling+1 attempts are made. A
// transient failure waits BaseDelay*2^attempt before retrying the same model;
// once a model's retries are spent the next model is tried without waiting.
// A non-transient failure ends the whole generation immediately.
//
// # Key Types
//
//   - Orchestrator: runs the fallback/retry loop against a Provider
//   - Provider: a single-attempt generator (see gemini.Client)
//   - GenerationError: terminal failure, NonRetryable or AllModelsExhausted
//
// # Usage
//
//	orch := orchestrator.New(gemini.NewClient(key),
//	    orchestrator.WithRetryCeiling(2),
//	    orchestrator.WithBaseDelay(400*time.Millisecond),
//	)
//	reply, err := orch.Generate(ctx, history.Turns(), systemPrompt, gemini.DefaultModels)
//	switch {
//	case errors.Is(err, orchestrator.ErrAllModelsExhausted):
//	    // every model failed transiently
//	case errors.Is(err, orchestrator.ErrNonRetryable):
//	    // request rejected or response unusable
//	}
package orchestrator
