// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/config"
	"github.com/mymckenzie/assistant/internal/gemini"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/orchestrator"
	"github.com/mymckenzie/assistant/internal/storage"
	"github.com/mymckenzie/assistant/internal/util"
)

const (
	// MaxRequestBodySize bounds JSON request bodies.
	MaxRequestBodySize = 1 << 20

	// MaxEchoBodySize bounds /api/echo bodies.
	MaxEchoBodySize = 1_000_000

	// MaxStorageFileChars caps the text of each stored file attached to a
	// /api/generate request.
	MaxStorageFileChars = 20000

	// MisconfiguredMessage is returned when no provider credentials exist.
	MisconfiguredMessage = "Server misconfigured: missing GEMINI_API_KEY"
)

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP API server and static page host.
type Server struct {
	router *http.ServeMux
	server *http.Server

	mu        sync.RWMutex
	cfg       *config.Config
	provider  orchestrator.Provider
	orch      *orchestrator.Orchestrator
	store     storage.Store
	blobs     *storage.BlobStore
	extractor *attachment.Extractor
	quotas    map[string]*attachment.Quota
	limiter   *RateLimiter

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	startTime time.Time
}

// NewServer creates a Server from cfg. Generation goes straight to the
// Gemini API with the configured key; the proxy URL is never used here.
func NewServer(cfg *config.Config, store storage.Store) *Server {
	client := gemini.NewClient(cfg.Gemini.APIKey).
		WithBaseURL(cfg.Gemini.BaseURL).
		WithTimeout(cfg.Gemini.Timeout.Duration)

	s := &Server{
		router:    http.NewServeMux(),
		cfg:       cfg.Clone(),
		provider:  client,
		store:     store,
		quotas:    make(map[string]*attachment.Quota),
		inflight:  make(map[string]struct{}),
		limiter:   NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		startTime: time.Now(),
	}
	s.orch = orchestrator.New(client, orchestratorOptions(s.cfg)...)
	s.extractor = attachment.NewExtractor(attachment.WithMaxPDFPages(s.cfg.Attachments.MaxPDFPages))
	s.setupRoutes()
	return s
}

// WithProvider replaces the generation backend.
func (s *Server) WithProvider(p orchestrator.Provider) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = p
	s.orch = orchestrator.New(p, orchestratorOptions(s.cfg)...)
	return s
}

// WithBlobStore enables attachment uploads and storage_paths lookups.
func (s *Server) WithBlobStore(b *storage.BlobStore) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs = b
	return s
}

// Reconfigure applies a reloaded configuration: models, prompt, retry
// policy and attachment limits. Listen address, storage and rate limits
// keep their startup values.
func (s *Server) Reconfigure(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := cfg.Clone()
	next.Server.Addr = s.cfg.Server.Addr
	next.Storage = s.cfg.Storage
	s.cfg = next
	s.orch.Update(orchestratorOptions(next)...)
	s.extractor = attachment.NewExtractor(attachment.WithMaxPDFPages(next.Attachments.MaxPDFPages))
	log.Info().Strs("models", next.Gemini.Models).Msg("server configuration reloaded")
}

func orchestratorOptions(cfg *config.Config) []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithRetryCeiling(cfg.Retry.Ceiling),
		orchestrator.WithBaseDelay(cfg.Retry.BaseDelay.Duration),
		orchestrator.WithClassifier(cfg.Classifier()),
	}
}

func (s *Server) snapshot() (*config.Config, *orchestrator.Orchestrator, orchestrator.Provider) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.orch, s.provider
}

// configured reports whether the provider has credentials. Providers that
// can't tell are assumed ready.
func configured(p orchestrator.Provider) bool {
	if c, ok := p.(interface{ IsConfigured() bool }); ok {
		return c.IsConfigured()
	}
	return true
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /api/health", s.handleHealth)
	s.router.HandleFunc("GET /api/db/health", s.handleDBHealth)
	s.router.HandleFunc("POST /api/echo", s.handleEcho)

	s.router.HandleFunc("POST /api/generate", s.handleGenerate)
	s.router.HandleFunc("POST /api/chat", s.handleChat)
	s.router.HandleFunc("POST /api/chat/stream", s.handleChatStream)

	s.router.HandleFunc("GET /api/conversations", s.handleListConversations)
	s.router.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	s.router.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)
	s.router.HandleFunc("POST /api/conversations/{id}/reset", s.handleResetConversation)

	s.router.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.Handle("/", s.staticHandler())
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	cfg, _, _ := s.snapshot()
	return Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(),
		CORSMiddleware(DefaultCORSConfig(cfg.Server.CORSOrigins)),
		RateLimitMiddleware(s.limiter),
		AuthMiddleware(&AuthConfig{
			BearerToken: cfg.Server.AuthToken,
			Prefix:      "/api/",
			Exempt:      []string{"/api/health"},
		}),
	)(s.router)
}

// ============================================================================
// HEALTH & ECHO
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleDBHealth(w http.ResponseWriter, r *http.Request) {
	cfg, _, _ := s.snapshot()
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("storage health check failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":  true,
		"now": time.Now().UTC().Format(time.RFC3339),
		"db":  cfg.Storage.Backend,
	})
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxEchoBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > MaxEchoBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var received any = map[string]any{}
	if len(strings.TrimSpace(string(body))) > 0 {
		if json.Valid(body) {
			received = json.RawMessage(body)
		} else {
			received = map[string]any{"raw": string(body)}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "received": received})
}

// ============================================================================
// GENERATE
// ============================================================================

// GenerateRequest is the /api/generate body: the provider request shape
// plus optional routing fields.
type GenerateRequest struct {
	Contents []gemini.Content `json:"contents"`
	Model    string           `json:"model,omitempty"`

	// UserID and StoragePaths attach previously uploaded files.
	UserID       string   `json:"user_id,omitempty"`
	StoragePaths []string `json:"storage_paths,omitempty"`
}

// handleGenerate passes a provider-shaped request through to one model and
// answers with a provider-shaped body, so keyless clients can point their
// proxy URL here. Exactly one upstream call is made; the caller owns retry
// and fallback.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	cfg, _, provider := s.snapshot()
	if !configured(provider) {
		writeError(w, http.StatusInternalServerError, MisconfiguredMessage)
		return
	}

	var req GenerateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	turns := make([]model.Turn, 0, len(req.Contents)+1)
	for i, c := range req.Contents {
		if err := validateParts(c.Parts); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("contents[%d]: %v", i, err))
			return
		}
		role := model.Role(c.Role)
		if role != model.RoleModel {
			role = model.RoleUser
		}
		turns = append(turns, model.Turn{Role: role, Parts: c.Parts})
	}
	if len(req.StoragePaths) > 0 {
		if text := s.storageFilesText(req.UserID, req.StoragePaths); text != "" {
			turns = append(turns, model.NewUserTurn(model.TextPart(text)))
		}
	}
	if len(turns) == 0 {
		writeError(w, http.StatusBadRequest, "contents is required")
		return
	}

	modelName := req.Model
	if m := r.URL.Query().Get("model"); m != "" {
		modelName = m
	}
	if modelName == "" {
		if len(cfg.Gemini.Models) == 0 {
			writeError(w, http.StatusBadRequest, "model is required")
			return
		}
		modelName = cfg.Gemini.Models[0]
	}

	reply, err := provider.GenerateContent(r.Context(), modelName, turns)
	if err != nil {
		s.writeGenerationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gemini.ReplyBody(reply))
}

// validateParts rejects turns the provider would refuse: no parts, or a part
// with neither text nor data.
func validateParts(parts []model.Part) error {
	if len(parts) == 0 {
		return errors.New("parts is required")
	}
	for i, p := range parts {
		if p.Empty() {
			return errors.Errorf("parts[%d] is empty", i)
		}
	}
	return nil
}

// storageFilesText reads the named uploads and joins their extracted text.
// Files that can't be read are skipped.
func (s *Server) storageFilesText(userID string, keys []string) string {
	s.mu.RLock()
	blobs, extractor := s.blobs, s.extractor
	s.mu.RUnlock()
	if blobs == nil {
		return ""
	}

	var sections []string
	for _, key := range keys {
		data, err := blobs.Get(userID, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("storage file unavailable")
			continue
		}
		text := extractor.Extract(attachment.File{Name: key, MIMEType: contentTypeFor(key), Data: data})
		if text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("-- FILE: %s --\n%s", key, util.TruncateRunes(text, MaxStorageFileChars)))
	}
	if len(sections) == 0 {
		return ""
	}
	return "Attached files content:\n" + strings.Join(sections, "\n\n")
}

// writeGenerationError maps a provider failure to a response. The
// provider's own status and body are passed through when there is one; an
// unreachable upstream is reported as 503 so callers treat it as transient.
func (s *Server) writeGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	log.Error().Err(err).Msg("generation failed")

	var transportErr *gemini.TransportError
	if errors.As(err, &transportErr) {
		writeError(w, http.StatusServiceUnavailable, "upstream unavailable: "+transportErr.Error())
		return
	}

	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		if json.Valid([]byte(apiErr.Body)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(apiErr.Status)
			_, _ = io.WriteString(w, apiErr.Body)
			return
		}
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and blocks until the server
// stops. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	cfg, _, _ := s.snapshot()
	s.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("static", cfg.Server.StaticDir).
		Bool("auth", cfg.Server.AuthToken != "").
		Msg("server starting")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "listen")
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("server shutting down")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// writeError writes the provider-style error envelope, so clients read the
// message from error.message either way.
func writeError(w http.ResponseWriter, status int, message string) {
	kind := "invalid_request_error"
	if status >= 500 {
		kind = "server_error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    kind,
			"code":    status,
		},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}
