// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini provides the HTTP client for the Gemini generateContent API.
//
// The client performs exactly one request per call. Retry and model fallback
// live in the orchestrator package; this package only reports what happened
// in a form that can be classified.
//
// # Key Types
//
//   - Client: sends generateContent requests directly or through a proxy
//   - APIError: non-2xx response with its status and provider message
//   - TransportError: the request never produced an HTTP response
//   - Classifier: predicate deciding whether a failed attempt may be retried
//
// # Usage
//
//	client := gemini.NewClient(os.Getenv("GEMINI_API_KEY"))
//	reply, err := client.GenerateContent(ctx, "gemini-2.5-flash-lite", turns)
//	if err != nil && gemini.DefaultClassifier(err) {
//	    // transient, try again later
//	}
//
// # Keyless Mode
//
// Without an API key the client posts to a proxy endpoint instead
// (WithProxyURL), which holds the key server-side. The request body is the
// same in both modes.
package gemini
