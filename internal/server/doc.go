// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP API and the static web front end.
//
// # Endpoints
//
//   - GET    /api/health                 - Liveness check
//   - GET    /api/db/health              - Storage backend check
//   - POST   /api/echo                   - Echo the request body
//   - POST   /api/generate               - Single upstream call (keyless proxy target)
//   - POST   /api/chat                   - One chat exchange, JSON or multipart
//   - POST   /api/chat/stream            - Same, streamed as server-sent events
//   - GET    /api/conversations          - List a user's conversations
//   - GET    /api/conversations/{id}     - Load a conversation
//   - DELETE /api/conversations/{id}     - Delete a conversation
//   - POST   /api/conversations/{id}/reset - Clear a conversation's turns
//
// Any other path is served from the static directory.
//
// # Middleware
//
// Requests pass through recovery, security headers, request logging, CORS,
// a per-IP token bucket and, when a token is configured, bearer
// authentication on /api/ (health excepted).
//
// # Usage
//
//	srv := server.NewServer(cfg, store).WithBlobStore(blobs)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
