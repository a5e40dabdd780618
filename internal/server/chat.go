// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/chat"
	"github.com/mymckenzie/assistant/internal/config"
	"github.com/mymckenzie/assistant/internal/render"
	"github.com/mymckenzie/assistant/internal/storage"
)

// maxMultipartMemory is held in memory before parts spill to disk.
const maxMultipartMemory = 8 << 20

var (
	// errConversationBusy is returned while another request is answering
	// the same conversation.
	errConversationBusy = errors.New("conversation is busy")

	errMisconfigured = errors.New(MisconfiguredMessage)
)

// ============================================================================
// REQUEST TYPES
// ============================================================================

// ChatRequest is the JSON form of a chat submission. The multipart form
// uses the same field names with the attachment in "file".
type ChatRequest struct {
	UserID         string       `json:"user_id"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Text           string       `json:"text"`
	File           *FilePayload `json:"file,omitempty"`
}

// FilePayload is an attachment in a JSON request. Data is base64 in JSON.
type FilePayload struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// ChatResponse is the /api/chat reply.
type ChatResponse struct {
	ConversationID string          `json:"conversation_id"`
	Reply          string          `json:"reply"`
	HTML           string          `json:"html"`
	Notices        []string        `json:"notices,omitempty"`
	Upload         *storage.Upload `json:"upload,omitempty"`
}

// parseChatRequest reads a JSON or multipart chat submission.
func parseChatRequest(w http.ResponseWriter, r *http.Request) (*ChatRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var req ChatRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return nil, errors.Wrap(err, "invalid request body")
		}
		return &req, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadSize+MaxRequestBodySize)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, errors.Wrap(err, "invalid multipart body")
	}
	req := &ChatRequest{
		UserID:         r.FormValue("user_id"),
		ConversationID: r.FormValue("conversation_id"),
		Text:           r.FormValue("text"),
	}

	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = contentTypeFor(header.Filename)
	}
	req.File = &FilePayload{Name: header.Filename, MIMEType: ct, Data: data}
	return req, nil
}

func (req *ChatRequest) submission() chat.Submission {
	sub := chat.Submission{Text: req.Text}
	if req.File != nil {
		sub.File = &attachment.File{
			Name:     req.File.Name,
			MIMEType: req.File.MIMEType,
			Data:     req.File.Data,
		}
	}
	return sub
}

// ============================================================================
// SESSIONS
// ============================================================================

// noticeCollector keeps the notices raised during one request and optionally
// forwards them.
type noticeCollector struct {
	mu      sync.Mutex
	notices []string
	forward func(string)
}

func (n *noticeCollector) Notify(message string) {
	n.mu.Lock()
	n.notices = append(n.notices, message)
	n.mu.Unlock()
	if n.forward != nil {
		n.forward(message)
	}
}

func (n *noticeCollector) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

// prepare validates req, claims the conversation and builds a session with
// its stored history. The returned release must be called when done.
func (s *Server) prepare(r *http.Request, req *ChatRequest, renderer *render.Renderer, notifier chat.Notifier) (*chat.Session, func(), error) {
	cfg, orch, provider := s.snapshot()
	if !configured(provider) {
		return nil, nil, errMisconfigured
	}
	if err := storage.ValidateID(req.UserID); err != nil {
		return nil, nil, err
	}
	if req.ConversationID == "" {
		req.ConversationID = storage.NewConversationID()
	} else if err := storage.ValidateID(req.ConversationID); err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(req.Text) == "" && req.File == nil {
		return nil, nil, chat.ErrEmptySubmission
	}

	key := req.UserID + "/" + req.ConversationID
	s.inflightMu.Lock()
	if _, busy := s.inflight[key]; busy {
		s.inflightMu.Unlock()
		return nil, nil, errConversationBusy
	}
	s.inflight[key] = struct{}{}
	s.inflightMu.Unlock()
	release := func() {
		s.inflightMu.Lock()
		delete(s.inflight, key)
		s.inflightMu.Unlock()
	}

	s.mu.RLock()
	blobs, extractor := s.blobs, s.extractor
	s.mu.RUnlock()

	opts := []chat.Option{
		chat.WithStore(s.store),
		chat.WithNotifier(notifier),
		chat.WithExtractor(extractor),
		chat.WithQuota(s.quotaFor(req.UserID, cfg)),
	}
	if blobs != nil {
		opts = append(opts, chat.WithUploader(blobs))
	}
	sess := chat.New(chat.Config{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Models:         cfg.Gemini.Models,
		SystemPrompt:   cfg.Gemini.SystemPrompt,
		MaxChars:       cfg.Attachments.MaxChars,
	}, orch, renderer, opts...)

	if err := sess.Load(r.Context()); err != nil {
		release()
		return nil, nil, errors.Wrap(err, "load conversation")
	}
	return sess, release, nil
}

// quotaFor returns the upload quota of userID, creating it on first use.
func (s *Server) quotaFor(userID string, cfg *config.Config) *attachment.Quota {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		q = attachment.NewQuota(cfg.Attachments.FreeUploadLimit, cfg.Attachments.Premium)
		s.quotas[userID] = q
	}
	return q
}

// prepareStatus maps a prepare or submit error to an HTTP status.
func prepareStatus(err error) int {
	switch {
	case errors.Is(err, errConversationBusy), errors.Is(err, chat.ErrSubmissionInProgress):
		return http.StatusConflict
	case errors.Is(err, attachment.ErrUploadLimitReached):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrInvalidID), errors.Is(err, chat.ErrEmptySubmission):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// CHAT
// ============================================================================

// handleChat answers one submission and returns the full reply with its
// final markup.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	notices := &noticeCollector{}
	renderer := render.New(render.WithDelay(0, 0), render.WithMaxChunk(4096))
	sess, release, err := s.prepare(r, req, renderer, notices)
	if err != nil {
		writeError(w, prepareStatus(err), err.Error())
		return
	}
	defer release()

	sink := render.NewBuffer()
	res, err := sess.Submit(r.Context(), req.submission(), sink)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if errors.Is(err, attachment.ErrUploadLimitReached) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"conversation_id": req.ConversationID,
			"error":           map[string]any{"message": err.Error(), "code": http.StatusBadGateway},
			"reply":           chat.Apology,
			"notices":         notices.list(),
		})
		return
	}
	res.Handle.Wait()

	writeJSON(w, http.StatusOK, ChatResponse{
		ConversationID: req.ConversationID,
		Reply:          res.Reply,
		HTML:           sink.Content(),
		Notices:        notices.list(),
		Upload:         res.Upload,
	})
}

// handleChatStream answers one submission as a server-sent event stream:
// "start", then "notice" and "frame" events as the reply types out, then
// "done". A failed generation sends the apology frame, "done", and "error".
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sink := newSSESink(w)
	cfg, _, _ := s.snapshot()
	renderer := render.New(
		render.WithMaxChunk(cfg.Render.MaxChunk),
		render.WithDelay(cfg.Render.MinDelay.Duration, cfg.Render.MaxDelay.Duration),
	)
	notices := &noticeCollector{forward: func(msg string) { sink.send("notice", msg) }}
	sess, release, err := s.prepare(r, req, renderer, notices)
	if err != nil {
		writeError(w, prepareStatus(err), err.Error())
		return
	}
	defer release()

	sink.open()
	sink.send("start", map[string]string{"conversation_id": req.ConversationID})

	res, err := sess.Submit(r.Context(), req.submission(), sink)
	if err != nil {
		if r.Context().Err() == nil {
			sink.send("error", map[string]string{"message": err.Error()})
		}
		return
	}

	select {
	case <-res.Handle.Done():
	case <-r.Context().Done():
		res.Handle.Cancel()
		log.Debug().Str("conversation", req.ConversationID).Msg("stream client went away")
	}
}

// sseSink is a render.Sink writing server-sent events.
type sseSink struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

// open writes the stream headers. Events sent before open are dropped.
func (s *sseSink) open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.opened = true
	_ = s.rc.Flush()
}

// Write implements render.Sink.
func (s *sseSink) Write(markup string) { s.send("frame", markup) }

// Finish implements render.Sink.
func (s *sseSink) Finish() { s.send("done", "") }

func (s *sseSink) send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return
	}
	if _, err := io.WriteString(s.w, "event: "+event+"\ndata: "+string(payload)+"\n\n"); err != nil {
		return
	}
	_ = s.rc.Flush()
}

// ============================================================================
// CONVERSATIONS
// ============================================================================

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	metas, err := s.store.List(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if metas == nil {
		metas = []storage.ConversationMeta{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": metas})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Load(r.Context(), r.URL.Query().Get("user_id"), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.URL.Query().Get("user_id"), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Reset(r.Context(), r.URL.Query().Get("user_id"), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, storage.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("storage request failed")
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}
