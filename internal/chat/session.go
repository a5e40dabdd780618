// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/render"
	"github.com/mymckenzie/assistant/internal/storage"
)

const (
	// ThinkingPlaceholder is shown while a reply is being generated.
	ThinkingPlaceholder = "💬 Thinking..."

	// Apology replaces the placeholder when every model failed.
	Apology = "⚠️ The service is overloaded or unavailable. Please try again in a minute."

	// User-facing notices.
	noticeUploadLimit  = "⚠️ You've reached your free upload limit."
	noticeUploadFailed = "⚠️ Attachment upload failed. Sending without attachment preview."
)

var (
	// ErrSubmissionInProgress is returned when a submission arrives while
	// another one on the same session is still being processed.
	ErrSubmissionInProgress = errors.New("a submission is already in progress")

	// ErrEmptySubmission is returned when there is neither text nor a file.
	ErrEmptySubmission = errors.New("empty submission")
)

// Generator produces a reply for a conversation history.
type Generator interface {
	Generate(ctx context.Context, history []model.Turn, systemPrompt string, models []string) (string, error)
}

// Extractor returns the plain text of an attachment, or "".
type Extractor interface {
	Extract(f attachment.File) string
}

// Uploader persists an attachment.
type Uploader interface {
	Put(ctx context.Context, userID, name string, data []byte) (storage.Upload, error)
}

// Notifier shows a transient notice to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify calls f.
func (f NotifierFunc) Notify(message string) { f(message) }

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}

// Submission is one user input: text, an optional file, or both.
type Submission struct {
	Text string
	File *attachment.File
}

// Result describes an accepted submission.
type Result struct {
	Reply    string
	UserTurn model.Turn

	// Handle controls the typing render of Reply.
	Handle *render.Handle

	// Upload is set when the attachment was stored.
	Upload *storage.Upload
}

// Config identifies the conversation and the generation settings.
type Config struct {
	UserID         string
	ConversationID string
	Models         []string
	SystemPrompt   string

	// MaxChars caps extracted attachment text. Zero means attachment.MaxChars.
	MaxChars int
}

// Option configures a Session.
type Option func(*Session)

// WithStore persists every turn.
func WithStore(store storage.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithUploader stores attachments before they are sent.
func WithUploader(u Uploader) Option {
	return func(s *Session) { s.uploader = u }
}

// WithNotifier receives user-facing notices.
func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithExtractor replaces the default attachment extractor.
func WithExtractor(e Extractor) Option {
	return func(s *Session) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithQuota sets the upload quota. The default is the free plan.
func WithQuota(q *attachment.Quota) Option {
	return func(s *Session) {
		if q != nil {
			s.quota = q
		}
	}
}

// Session is one conversation: its history, the submission guard and the
// render in flight.
type Session struct {
	mu         sync.Mutex
	cfg        Config
	submitting bool
	active     *render.Handle

	history   *model.History
	generator Generator
	renderer  *render.Renderer
	extractor Extractor
	store     storage.Store
	uploader  Uploader
	notifier  Notifier
	quota     *attachment.Quota
}

// New creates a session with an empty history.
func New(cfg Config, gen Generator, renderer *render.Renderer, opts ...Option) *Session {
	if renderer == nil {
		renderer = render.New()
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = attachment.MaxChars
	}
	s := &Session{
		cfg:       cfg,
		history:   &model.History{},
		generator: gen,
		renderer:  renderer,
		extractor: attachment.NewExtractor(),
		notifier:  nopNotifier{},
		quota:     attachment.NewQuota(attachment.DefaultFreeUploadLimit, false),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the conversation ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.ConversationID
}

// History returns a copy of the turns so far.
func (s *Session) History() []model.Turn {
	return s.history.Turns()
}

// Quota returns the session's upload quota.
func (s *Session) Quota() *attachment.Quota {
	return s.quota
}

// SetModels replaces the model fallback order for later submissions.
func (s *Session) SetModels(models []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Models = append([]string(nil), models...)
}

// SetSystemPrompt replaces the system prompt for later submissions.
func (s *Session) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.SystemPrompt = prompt
}

// Busy reports whether a submission is being processed.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

func (s *Session) acquire() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return Config{}, ErrSubmissionInProgress
	}
	s.submitting = true
	cfg := s.cfg
	cfg.Models = append([]string(nil), s.cfg.Models...)
	return cfg, nil
}

func (s *Session) releaseGuard() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
}

// Submit runs one exchange: attachment handling, the user turn, generation,
// and the typing render of the reply into sink.
//
// On success the model turn is appended and rendering has started when Submit
// returns. On failure the apology is written to sink, sink is finished, and
// no model turn is recorded; the user turn stays in the history.
func (s *Session) Submit(ctx context.Context, sub Submission, sink render.Sink) (*Result, error) {
	text := strings.TrimSpace(sub.Text)
	if text == "" && sub.File == nil {
		return nil, ErrEmptySubmission
	}

	cfg, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.releaseGuard()

	res := &Result{}

	var (
		file      *attachment.File
		extracted string
	)
	if sub.File != nil {
		if err := s.quota.Reserve(); err != nil {
			s.notifier.Notify(noticeUploadLimit)
			if text == "" {
				return nil, err
			}
		} else {
			file = sub.File
			res.Upload = s.upload(ctx, cfg.UserID, file)
			extracted = s.extractor.Extract(*file)
		}
	}

	userTurn := model.NewUserTurn(attachment.BuildParts(text, file, extracted, cfg.MaxChars)...)
	s.history.Append(userTurn)
	s.persist(ctx, cfg, userTurn)
	res.UserTurn = userTurn

	if prev := s.renderer.Active(sink); prev != nil {
		prev.Cancel()
	}
	sink.Write(ThinkingPlaceholder)

	reply, err := s.generator.Generate(ctx, s.history.Turns(), cfg.SystemPrompt, cfg.Models)
	if err != nil {
		if ctx.Err() == nil {
			sink.Write(Apology)
		}
		sink.Finish()
		log.Error().Err(err).Str("conversation", cfg.ConversationID).Msg("generation failed")
		return nil, err
	}

	modelTurn := model.NewModelTurn(reply)
	s.history.Append(modelTurn)
	s.persist(ctx, cfg, modelTurn)

	handle := s.renderer.Start(reply, sink)
	s.mu.Lock()
	s.active = handle
	s.mu.Unlock()

	res.Reply = reply
	res.Handle = handle
	return res, nil
}

func (s *Session) upload(ctx context.Context, userID string, file *attachment.File) *storage.Upload {
	if s.uploader == nil {
		return nil
	}
	up, err := s.uploader.Put(ctx, userID, file.Name, file.Data)
	if err != nil {
		log.Warn().Err(err).Str("file", file.Name).Msg("attachment upload failed")
		s.notifier.Notify(noticeUploadFailed)
		return nil
	}
	return &up
}

func (s *Session) persist(ctx context.Context, cfg Config, turn model.Turn) {
	if s.store == nil {
		return
	}
	if err := s.store.AppendTurn(ctx, cfg.UserID, cfg.ConversationID, turn); err != nil {
		log.Warn().Err(err).
			Str("conversation", cfg.ConversationID).
			Str("role", turn.Role.String()).
			Msg("failed to persist turn")
	}
}

// Stop cancels the typing render in flight, if any. The reply stays in the
// history.
func (s *Session) Stop() {
	s.mu.Lock()
	h := s.active
	s.active = nil
	s.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
}

// Reset stops rendering and clears the history, including the stored copy.
func (s *Session) Reset(ctx context.Context) error {
	cfg, err := s.acquire()
	if err != nil {
		return err
	}
	defer s.releaseGuard()

	s.Stop()
	s.history.Reset()
	if s.store == nil {
		return nil
	}
	if err := s.store.Reset(ctx, cfg.UserID, cfg.ConversationID); err != nil && !errors.Is(err, storage.ErrConversationNotFound) {
		return errors.Wrap(err, "reset stored conversation")
	}
	return nil
}

// Load replaces the history with the stored conversation. A conversation
// that was never stored loads as empty.
func (s *Session) Load(ctx context.Context) error {
	cfg, err := s.acquire()
	if err != nil {
		return err
	}
	defer s.releaseGuard()

	if s.store == nil {
		return nil
	}
	conv, err := s.store.Load(ctx, cfg.UserID, cfg.ConversationID)
	if errors.Is(err, storage.ErrConversationNotFound) {
		s.history.Reset()
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load conversation")
	}

	s.history.Reset()
	for _, t := range conv.Turns {
		s.history.Append(t)
	}
	return nil
}
