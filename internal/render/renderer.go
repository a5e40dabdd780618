// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"
)

const (
	// DefaultMaxChunk is the largest number of characters revealed per step.
	DefaultMaxChunk = 3

	// DefaultMinDelay and DefaultMaxDelay bound the pause between steps.
	DefaultMinDelay = 20 * time.Millisecond
	DefaultMaxDelay = 59 * time.Millisecond
)

// Sink is a display surface for one reply.
//
// Write replaces the displayed content with markup. Finish marks the surface
// as no longer in progress. Sinks are matched by identity and must be of a
// comparable type; Start and Active panic on anything else.
type Sink interface {
	Write(markup string)
	Finish()
}

// Markup converts reply text into what a sink displays.
type Markup interface {
	// Partial renders the accumulated prefix during typing.
	Partial(accumulated string) string
	// Final renders the complete text once typing ends.
	Final(text string) string
}

// Session is a snapshot of a render's progress.
type Session struct {
	Accumulated string
	Cursor      int // characters revealed so far
	Total       int // characters in the full text
	Cancelled   bool
	Finished    bool
}

// =============================================================================
// RENDERER
// =============================================================================

// Option configures a Renderer.
type Option func(*Renderer)

// WithMarkup sets the markup transform. The default is HTMLMarkup.
func WithMarkup(m Markup) Option {
	return func(r *Renderer) {
		if m != nil {
			r.markup = m
		}
	}
}

// WithMaxChunk sets the largest number of characters revealed per step.
func WithMaxChunk(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxChunk = n
		}
	}
}

// WithDelay sets the inclusive range of the pause between steps.
func WithDelay(minDelay, maxDelay time.Duration) Option {
	return func(r *Renderer) {
		if minDelay < 0 || maxDelay < minDelay {
			return
		}
		r.minDelay = minDelay
		r.maxDelay = maxDelay
	}
}

// WithRand sets the random source for chunk sizes and delays.
func WithRand(rnd *rand.Rand) Option {
	return func(r *Renderer) {
		if rnd != nil {
			r.rnd = rnd
		}
	}
}

// Renderer runs typing-effect renders. It is safe for concurrent use.
type Renderer struct {
	markup   Markup
	maxChunk int
	minDelay time.Duration
	maxDelay time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu     sync.Mutex
	active map[Sink]*Handle
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		markup:   HTMLMarkup{},
		maxChunk: DefaultMaxChunk,
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		active:   make(map[Sink]*Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Markup returns the renderer's markup transform.
func (r *Renderer) Markup() Markup {
	return r.markup
}

// Start begins revealing text into sink and returns immediately.
//
// An unfinished render on the same sink is cancelled first. Sinks are
// matched by identity, so sink must be of a comparable type (usually a
// pointer); Start panics otherwise.
func (r *Renderer) Start(text string, sink Sink) *Handle {
	checkSink(sink)

	h := &Handle{
		text: []rune(text),
		sink: sink,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	if prev := r.active[sink]; prev != nil {
		prev.Cancel()
	}
	r.active[sink] = h
	r.mu.Unlock()

	go r.run(h)
	return h
}

// Active returns the unfinished render on sink, if any.
func (r *Renderer) Active(sink Sink) *Handle {
	checkSink(sink)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[sink]
}

func checkSink(sink Sink) {
	if sink == nil {
		panic("render: nil sink")
	}
	if t := reflect.TypeOf(sink); !t.Comparable() {
		panic(fmt.Sprintf("render: sink type %s is not comparable; pass a pointer", t))
	}
}

// CancelAll cancels every unfinished render.
func (r *Renderer) CancelAll() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.active))
	for _, h := range r.active {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
}

func (r *Renderer) run(h *Handle) {
	defer close(h.done)
	defer r.release(h)

	for {
		n := r.chunkSize()
		if !h.step(n, r.markup) {
			return
		}

		if d := r.stepDelay(); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-h.stop:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

func (r *Renderer) release(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[h.sink] == h {
		delete(r.active, h.sink)
	}
}

func (r *Renderer) chunkSize() int {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.rnd.Intn(r.maxChunk) + 1
}

// stepDelay returns a delay in [minDelay, maxDelay] at millisecond
// granularity.
func (r *Renderer) stepDelay() time.Duration {
	spread := int64((r.maxDelay - r.minDelay) / time.Millisecond)
	if spread <= 0 {
		return r.minDelay
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.minDelay + time.Duration(r.rnd.Int63n(spread+1))*time.Millisecond
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle controls a single render.
type Handle struct {
	mu        sync.Mutex
	text      []rune
	cursor    int
	cancelled bool
	finished  bool
	sink      Sink

	stop chan struct{}
	done chan struct{}
}

// step reveals up to n more characters. It returns false when the render is
// over, either finished or cancelled.
//
// The cancelled check and the sink writes happen under the same lock as
// Cancel, so once Cancel returns the sink sees no further writes.
func (h *Handle) step(n int, m Markup) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancelled {
		return false
	}

	h.cursor += n
	if h.cursor > len(h.text) {
		h.cursor = len(h.text)
	}
	h.sink.Write(m.Partial(string(h.text[:h.cursor])))

	if h.cursor < len(h.text) {
		return true
	}

	h.sink.Write(m.Final(string(h.text)))
	h.sink.Finish()
	h.finished = true
	return false
}

// Cancel stops the render. No final pass is made and the sink receives no
// further writes once Cancel returns. Cancelling a finished or already
// cancelled render has no effect.
//
// Cancel must not be called from inside Sink.Write.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled || h.finished {
		return
	}
	h.cancelled = true
	close(h.stop)
}

// Done is closed when the render finishes or is cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the render is over.
func (h *Handle) Wait() {
	<-h.done
}

// Cancelled reports whether the render was cancelled.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Session returns a snapshot of the render's progress.
func (h *Handle) Session() Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Session{
		Accumulated: string(h.text[:h.cursor]),
		Cursor:      h.cursor,
		Total:       len(h.text),
		Cancelled:   h.cancelled,
		Finished:    h.finished,
	}
}
