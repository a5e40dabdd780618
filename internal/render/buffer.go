// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import "sync"

// Buffer is a Sink that keeps the latest markup in memory so it can be
// polled, e.g. from a UI tick loop. It is safe for concurrent use.
type Buffer struct {
	mu         sync.Mutex
	content    string
	writes     int
	finished   bool
	keepFrames bool
	frames     []string
}

// NewBuffer creates a Buffer holding only the latest write.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewRecorder creates a Buffer that also keeps every write in order.
func NewRecorder() *Buffer {
	return &Buffer{keepFrames: true}
}

// Write implements Sink.
func (b *Buffer) Write(markup string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = markup
	b.writes++
	if b.keepFrames {
		b.frames = append(b.frames, markup)
	}
}

// Finish implements Sink.
func (b *Buffer) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished = true
}

// Content returns the latest markup.
func (b *Buffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// Writes returns how many times Write was called.
func (b *Buffer) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Finished reports whether Finish was called.
func (b *Buffer) Finished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// Frames returns a copy of every write, if the buffer records them.
func (b *Buffer) Frames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.frames))
	copy(out, b.frames)
	return out
}

// Reset clears the buffer for reuse.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = ""
	b.writes = 0
	b.finished = false
	b.frames = nil
}
