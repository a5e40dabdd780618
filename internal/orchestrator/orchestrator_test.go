// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mymckenzie/assistant/internal/gemini"
	"github.com/mymckenzie/assistant/internal/model"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type result struct {
	reply string
	err   error
}

// scriptedProvider returns scripted results per model, in order. When a
// model's script runs out the last entry repeats.
type scriptedProvider struct {
	mu       sync.Mutex
	scripts  map[string][]result
	calls    []string
	contents [][]model.Turn
}

func (p *scriptedProvider) GenerateContent(_ context.Context, modelName string, contents []model.Turn) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, modelName)
	p.contents = append(p.contents, contents)

	script := p.scripts[modelName]
	if len(script) == 0 {
		return "", &gemini.APIError{Status: 404, Message: "unknown model"}
	}
	r := script[0]
	if len(script) > 1 {
		p.scripts[modelName] = script[1:]
	}
	return r.reply, r.err
}

// timerRecorder is a backoff.Timer that fires at once and records each
// requested wait.
type timerRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (t *timerRecorder) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *timerRecorder) Stop() {}

func (t *timerRecorder) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func (t *timerRecorder) timer() backoff.Timer { return t }

// stalledTimer never fires; Start runs onStart instead.
type stalledTimer struct {
	onStart func()
}

func (t *stalledTimer) Start(time.Duration) { t.onStart() }
func (t *stalledTimer) Stop()               {}
func (t *stalledTimer) C() <-chan time.Time { return nil }

var (
	overloaded  = result{err: &gemini.APIError{Status: 503, Message: "The model is overloaded."}}
	rateLimited = result{err: &gemini.APIError{Status: 429, Message: "Resource exhausted"}}
	badRequest  = result{err: &gemini.APIError{Status: 400, Message: "Invalid argument"}}
)

func testHistory() []model.Turn {
	return []model.Turn{model.NewUserTurn(model.TextPart("Can my landlord keep my deposit?"))}
}

func newTestOrchestrator(p Provider, rec *timerRecorder, opts ...Option) *Orchestrator {
	opts = append([]Option{WithTimer(rec.timer)}, opts...)
	return New(p, opts...)
}

// =============================================================================
// GENERATE TESTS
// =============================================================================

func TestGenerate_FirstAttemptSucceeds(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {{reply: "Yes, within limits."}}}}
	rec := &timerRecorder{}

	reply, err := newTestOrchestrator(p, rec).Generate(context.Background(), testHistory(), "sys", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, "Yes, within limits.", reply)
	assert.Equal(t, []string{"A"}, p.calls)
	assert.Empty(t, rec.delays)
}

func TestGenerate_RequestStartsWithSystemPrompt(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {{reply: "ok"}}}}
	history := []model.Turn{
		model.NewUserTurn(model.TextPart("q1")),
		model.NewModelTurn("a1"),
		model.NewUserTurn(model.TextPart("q2")),
	}

	_, err := newTestOrchestrator(p, &timerRecorder{}).Generate(context.Background(), history, "You are McKenzie.", []string{"A"})
	require.NoError(t, err)

	require.Len(t, p.contents, 1)
	sent := p.contents[0]
	require.Len(t, sent, 4)
	assert.Equal(t, model.RoleUser, sent[0].Role)
	assert.Equal(t, "You are McKenzie.", sent[0].Text())
	assert.Equal(t, "q1", sent[1].Text())
	assert.Equal(t, model.RoleModel, sent[2].Role)
	assert.Equal(t, "q2", sent[3].Text())
}

func TestGenerate_RetryThenSucceed(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded, {reply: "X"}}}}
	rec := &timerRecorder{}

	reply, err := newTestOrchestrator(p, rec).Generate(context.Background(), testHistory(), "sys", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, "X", reply)
	assert.Equal(t, []string{"A", "A"}, p.calls)
	assert.Equal(t, []time.Duration{400 * time.Millisecond}, rec.delays)
}

func TestGenerate_FallbackAfterRetriesExhausted(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{
		"A": {rateLimited},
		"B": {{reply: "Y"}},
	}}
	rec := &timerRecorder{}

	reply, err := newTestOrchestrator(p, rec).Generate(context.Background(), testHistory(), "sys", []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, "Y", reply)
	assert.Equal(t, []string{"A", "A", "A", "B"}, p.calls)
	// Two backoffs for A, none between models.
	assert.Equal(t, []time.Duration{400 * time.Millisecond, 800 * time.Millisecond}, rec.delays)
}

func TestGenerate_NonRetryableStopsImmediately(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{
		"A": {badRequest},
		"B": {{reply: "never"}},
	}}
	rec := &timerRecorder{}

	_, err := newTestOrchestrator(p, rec).Generate(context.Background(), testHistory(), "sys", []string{"A", "B"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.False(t, errors.Is(err, ErrAllModelsExhausted))
	assert.Equal(t, []string{"A"}, p.calls)
	assert.Empty(t, rec.delays)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, KindNonRetryable, genErr.Kind)
	assert.Equal(t, "A", genErr.Model)

	var apiErr *gemini.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)
}

func TestGenerate_MalformedResponseIsFatal(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{
		"A": {{err: gemini.ErrMalformedResponse}},
		"B": {{reply: "never"}},
	}}

	_, err := newTestOrchestrator(p, &timerRecorder{}).Generate(context.Background(), testHistory(), "sys", []string{"A", "B"})
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.ErrorIs(t, err, gemini.ErrMalformedResponse)
	assert.Equal(t, []string{"A"}, p.calls)
}

func TestGenerate_AllModelsExhausted(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{
		"A": {overloaded},
		"B": {overloaded},
		"C": {rateLimited},
	}}
	rec := &timerRecorder{}

	_, err := newTestOrchestrator(p, rec).Generate(context.Background(), testHistory(), "sys", []string{"A", "B", "C"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsExhausted)

	// Each model gets exactly RetryCeiling+1 attempts.
	assert.Equal(t, []string{"A", "A", "A", "B", "B", "B", "C", "C", "C"}, p.calls)
	assert.Len(t, rec.delays, 6)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Len(t, genErr.Attempts, 9)
	for _, a := range genErr.Attempts {
		assert.Equal(t, model.OutcomeRetryable, a.Outcome)
	}
}

func TestGenerate_TransportErrorsAreRetried(t *testing.T) {
	netErr := result{err: &gemini.TransportError{Err: errors.New("connection reset by peer")}}
	p := &scriptedProvider{scripts: map[string][]result{"A": {netErr, netErr, {reply: "recovered"}}}}

	reply, err := newTestOrchestrator(p, &timerRecorder{}).Generate(context.Background(), testHistory(), "", []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply)
	assert.Len(t, p.calls, 3)
}

func TestGenerate_OverloadMessageOnOtherStatusIsRetried(t *testing.T) {
	busy := result{err: &gemini.APIError{Status: 500, Message: "Server busy, try again later"}}
	p := &scriptedProvider{scripts: map[string][]result{"A": {busy, {reply: "ok"}}}}

	reply, err := newTestOrchestrator(p, &timerRecorder{}).Generate(context.Background(), testHistory(), "", []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}

func TestGenerate_CustomRetryCeilingAndDelay(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded}}}
	rec := &timerRecorder{}

	o := newTestOrchestrator(p, rec, WithRetryCeiling(3), WithBaseDelay(300*time.Millisecond))
	_, err := o.Generate(context.Background(), testHistory(), "", []string{"A"})
	assert.ErrorIs(t, err, ErrAllModelsExhausted)
	assert.Len(t, p.calls, 4)
	assert.Equal(t, []time.Duration{
		300 * time.Millisecond, 600 * time.Millisecond, 1200 * time.Millisecond,
	}, rec.delays)
}

func TestGenerate_CustomClassifier(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded}, "B": {{reply: "b"}}}}

	// Treat nothing as transient.
	o := newTestOrchestrator(p, &timerRecorder{}, WithClassifier(func(error) bool { return false }))
	_, err := o.Generate(context.Background(), testHistory(), "", []string{"A", "B"})
	assert.ErrorIs(t, err, ErrNonRetryable)
	assert.Equal(t, []string{"A"}, p.calls)
}

func TestGenerate_ObserverSeesEveryAttempt(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded, {reply: "done"}}}}
	var seen []model.Attempt

	o := newTestOrchestrator(p, &timerRecorder{}, WithObserver(func(a model.Attempt) { seen = append(seen, a) }))
	_, err := o.Generate(context.Background(), testHistory(), "", []string{"A"})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, model.OutcomeRetryable, seen[0].Outcome)
	assert.Equal(t, 0, seen[0].Number)
	assert.Equal(t, model.OutcomeSuccess, seen[1].Outcome)
	assert.Equal(t, 1, seen[1].Number)
}

func TestGenerate_ContextCanceledDuringBackoff(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded}}}
	ctx, cancel := context.WithCancel(context.Background())

	o := New(p, WithTimer(func() backoff.Timer { return &stalledTimer{onStart: cancel} }))
	_, err := o.Generate(ctx, testHistory(), "", []string{"A", "B"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"A"}, p.calls)
}

func TestGenerate_InvalidInput(t *testing.T) {
	o := New(&scriptedProvider{})

	_, err := o.Generate(context.Background(), nil, "", []string{"A"})
	assert.ErrorIs(t, err, ErrEmptyHistory)

	_, err = o.Generate(context.Background(), testHistory(), "", nil)
	assert.ErrorIs(t, err, ErrNoModels)
}

func TestUpdate_ChangesSettings(t *testing.T) {
	o := New(&scriptedProvider{})
	assert.Equal(t, 400*time.Millisecond, o.BackoffDelay(0))
	assert.Equal(t, 1600*time.Millisecond, o.BackoffDelay(2))

	o.Update(WithBaseDelay(100 * time.Millisecond))
	assert.Equal(t, 200*time.Millisecond, o.BackoffDelay(1))
}

func TestBuildContents_OmitsEmptyPrompt(t *testing.T) {
	assert.Len(t, BuildContents(testHistory(), ""), 1)
	assert.Len(t, BuildContents(testHistory(), "sys"), 2)
}

func TestGenerate_RealTimerWaits(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded, {reply: "ok"}}}}

	o := New(p, WithBaseDelay(20*time.Millisecond))
	start := time.Now()
	reply, err := o.Generate(context.Background(), testHistory(), "", []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestGenerate_CanceledContextStopsRealTimer(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	o := New(p, WithBaseDelay(time.Hour))
	_, err := o.Generate(ctx, testHistory(), "", []string{"A", "B"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"A"}, p.calls)
}

func TestGenerate_ZeroCeilingMakesOneAttemptPerModel(t *testing.T) {
	p := &scriptedProvider{scripts: map[string][]result{"A": {overloaded}, "B": {overloaded}}}
	rec := &timerRecorder{}

	_, err := newTestOrchestrator(p, rec, WithRetryCeiling(0)).Generate(context.Background(), testHistory(), "", []string{"A", "B"})
	assert.ErrorIs(t, err, ErrAllModelsExhausted)
	assert.Equal(t, []string{"A", "B"}, p.calls)
	assert.Empty(t, rec.delays)
}

func TestGenerationError_Message(t *testing.T) {
	err := &GenerationError{Kind: KindAllModelsExhausted, Err: errors.New("503")}
	assert.Contains(t, err.Error(), "all models exhausted")
	assert.Equal(t, "AllModelsExhausted", KindAllModelsExhausted.String())
	assert.Equal(t, "NonRetryableProviderError", KindNonRetryable.String())
}
