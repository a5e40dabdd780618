// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/mymckenzie/assistant/internal/gemini"
	"github.com/mymckenzie/assistant/internal/model"
)

const (
	// DefaultRetryCeiling is the number of retries per model after the first
	// attempt.
	DefaultRetryCeiling = 2

	// DefaultBaseDelay is the backoff base; attempt n waits base*2^n.
	DefaultBaseDelay = 400 * time.Millisecond
)

// Provider performs a single generation attempt against one model.
type Provider interface {
	GenerateContent(ctx context.Context, modelName string, contents []model.Turn) (string, error)
}

// TimerFunc returns the timer used for the backoff waits of one model.
type TimerFunc func() backoff.Timer

// Observer receives every attempt as it completes.
type Observer func(model.Attempt)

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures an Orchestrator.
type Option func(*settings)

type settings struct {
	retryCeiling int
	baseDelay    time.Duration
	classify     gemini.Classifier
	timer        TimerFunc
	observer     Observer
}

// WithRetryCeiling sets the retries per model after the first attempt.
func WithRetryCeiling(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.retryCeiling = n
		}
	}
}

// WithBaseDelay sets the exponential backoff base.
func WithBaseDelay(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.baseDelay = d
		}
	}
}

// WithClassifier sets the predicate deciding which failures are transient.
func WithClassifier(c gemini.Classifier) Option {
	return func(s *settings) {
		if c != nil {
			s.classify = c
		}
	}
}

// WithTimer replaces the backoff timer, mainly for tests.
func WithTimer(fn TimerFunc) Option {
	return func(s *settings) {
		s.timer = fn
	}
}

// WithObserver registers a callback invoked after every attempt.
func WithObserver(fn Observer) Option {
	return func(s *settings) {
		s.observer = fn
	}
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator runs the fallback/retry loop. It holds no per-conversation
// state and is safe for concurrent use.
type Orchestrator struct {
	provider Provider

	mu  sync.RWMutex
	cfg settings
}

// New creates an Orchestrator over provider.
func New(provider Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		cfg: settings{
			retryCeiling: DefaultRetryCeiling,
			baseDelay:    DefaultBaseDelay,
			classify:     gemini.DefaultClassifier,
		},
	}
	for _, opt := range opts {
		opt(&o.cfg)
	}
	return o
}

// Update applies options to a live orchestrator, e.g. after a config reload.
// Generations already running keep the settings they started with.
func (o *Orchestrator) Update(opts ...Option) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, opt := range opts {
		opt(&o.cfg)
	}
}

func (o *Orchestrator) snapshot() settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// BackoffDelay returns the wait after a transient failure on attempt n.
func (o *Orchestrator) BackoffDelay(attempt int) time.Duration {
	b := newBackOff(o.snapshot().baseDelay)
	d := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// newBackOff is the exact base*2^n schedule with no jitter and no elapsed
// time limit.
func newBackOff(base time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// BuildContents returns the request turns: the system prompt as a user turn,
// followed by history in order. An empty prompt is omitted.
func BuildContents(history []model.Turn, systemPrompt string) []model.Turn {
	contents := make([]model.Turn, 0, len(history)+1)
	if systemPrompt != "" {
		contents = append(contents, model.Turn{
			Role:  model.RoleUser,
			Parts: []model.Part{model.TextPart(systemPrompt)},
		})
	}
	return append(contents, history...)
}

// Generate returns the first successful reply for history.
//
// Models are tried in order. The returned error is a *GenerationError for
// provider failures, or ctx.Err() if the context ends first.
func (o *Orchestrator) Generate(ctx context.Context, history []model.Turn, systemPrompt string, models []string) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}
	if len(models) == 0 {
		return "", ErrNoModels
	}

	cfg := o.snapshot()
	r := &run{ctx: ctx, cfg: cfg, provider: o.provider, contents: BuildContents(history, systemPrompt)}

	var lastErr error
	for i, modelName := range models {
		reply, err := r.tryModel(modelName)
		if err == nil {
			return reply, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if r.fatal {
			log.Error().Err(err).Str("model", modelName).Msg("generation failed")
			return "", &GenerationError{Kind: KindNonRetryable, Model: modelName, Attempts: r.attempts, Err: err}
		}
		lastErr = err

		if i < len(models)-1 {
			log.Warn().Err(lastErr).Str("model", modelName).Str("next", models[i+1]).Msg("model exhausted, falling back")
		}
	}

	log.Error().Err(lastErr).Int("attempts", len(r.attempts)).Msg("all models exhausted")
	return "", &GenerationError{
		Kind:     KindAllModelsExhausted,
		Model:    models[len(models)-1],
		Attempts: r.attempts,
		Err:      lastErr,
	}
}

// run is the state of one Generate call across models.
type run struct {
	ctx      context.Context
	cfg      settings
	provider Provider
	contents []model.Turn

	attempts []model.Attempt
	fatal    bool
}

func (r *run) record(a model.Attempt) {
	r.attempts = append(r.attempts, a)
	if r.cfg.observer != nil {
		r.cfg.observer(a)
	}
}

// tryModel makes up to retryCeiling+1 attempts against one model. A
// non-retryable failure sets r.fatal.
func (r *run) tryModel(modelName string) (string, error) {
	attempt := 0
	op := func() (string, error) {
		n := attempt
		attempt++

		start := time.Now()
		reply, err := r.provider.GenerateContent(r.ctx, modelName, r.contents)
		a := model.Attempt{Model: modelName, Number: n, Err: err, Duration: time.Since(start)}

		if err == nil {
			a.Outcome = model.OutcomeSuccess
			r.record(a)
			log.Debug().Str("model", modelName).Int("attempt", n).Msg("generation succeeded")
			return reply, nil
		}
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return "", backoff.Permanent(ctxErr)
		}
		if !r.cfg.classify(err) {
			a.Outcome = model.OutcomeFatal
			r.record(a)
			r.fatal = true
			return "", backoff.Permanent(err)
		}

		a.Outcome = model.OutcomeRetryable
		r.record(a)
		return "", err
	}

	notify := func(err error, delay time.Duration) {
		log.Debug().Err(err).Str("model", modelName).Int("attempt", attempt-1).Dur("backoff", delay).Msg("transient failure, retrying")
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(r.cfg.baseDelay), uint64(r.cfg.retryCeiling)),
		r.ctx,
	)

	var timer backoff.Timer
	if r.cfg.timer != nil {
		timer = r.cfg.timer()
	}
	return backoff.RetryNotifyWithTimerAndData(op, policy, notify, timer)
}
