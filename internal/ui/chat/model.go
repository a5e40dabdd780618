// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mymckenzie/assistant/internal/attachment"
	session "github.com/mymckenzie/assistant/internal/chat"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/render"
	"github.com/mymckenzie/assistant/internal/ui/styles"
)

// frameInterval is how often the live reply is redrawn.
const frameInterval = 30 * time.Millisecond

// =============================================================================
// CHAT STATE
// =============================================================================

// State is the phase of the current exchange.
type State int

const (
	StateReady   State = iota // Ready for input
	StateWaiting              // Waiting for the reply
	StateTyping               // Reply is typing out
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateTyping:
		return "typing"
	default:
		return "ready"
	}
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusNotice
	statusError
)

// =============================================================================
// NOTICES
// =============================================================================

// NoticeQueue is a session notifier whose messages the screen picks up on
// its next update.
type NoticeQueue struct {
	mu      sync.Mutex
	pending []string
}

// NewNoticeQueue creates an empty queue.
func NewNoticeQueue() *NoticeQueue {
	return &NoticeQueue{}
}

// Notify implements chat.Notifier.
func (q *NoticeQueue) Notify(message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, message)
}

func (q *NoticeQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// entry is one message on screen. A reply being rendered reads from sink.
type entry struct {
	role       model.Role
	text       string
	attachment string
	sink       *render.Buffer
}

// Options configures the chat screen.
type Options struct {
	Title string

	// Markup renders stored replies. It should match the session
	// renderer's markup.
	Markup render.Markup

	// Notices must be the notifier the session was built with.
	Notices *NoticeQueue

	// ReadFile loads /file attachments. Defaults to os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

// Model is the Bubble Tea model of the chat screen.
type Model struct {
	session *session.Session
	markup  render.Markup
	notices *NoticeQueue
	readFn  func(string) ([]byte, error)
	title   string

	theme *styles.Theme
	keys  KeyMap

	state   State
	entries []entry
	handle  *render.Handle
	pending *attachment.File

	status     string
	statusKind statusKind

	cancelMgr *cancelManager

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width  int
	height int
}

// New creates the chat screen for sess. Turns already in the session's
// history are shown.
func New(sess *session.Session, opts Options) Model {
	if opts.Markup == nil {
		opts.Markup = render.PlainMarkup{}
	}
	if opts.Notices == nil {
		opts.Notices = NewNoticeQueue()
	}
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	if opts.Title == "" {
		opts.Title = "MyMcKenzie"
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your case... (/file <path> to attach)"
	ti.CharLimit = 8000
	ti.Focus()

	theme := styles.NewTheme()
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := Model{
		session:   sess,
		markup:    opts.Markup,
		notices:   opts.Notices,
		readFn:    opts.ReadFile,
		title:     opts.Title,
		theme:     theme,
		keys:      DefaultKeyMap(),
		cancelMgr: newCancelManager(),
		viewport:  viewport.New(80, 20),
		input:     ti,
		spinner:   sp,
		width:     80,
		height:    24,
	}
	for _, turn := range sess.History() {
		m.entries = append(m.entries, entryFor(turn))
	}
	m.refresh()
	return m
}

// entryFor converts a stored turn for display. Extracted attachment text
// is left out of user turns.
func entryFor(turn model.Turn) entry {
	text := turn.Text()
	if turn.Role == model.RoleUser {
		if i := strings.Index(text, attachment.ContextHeader); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSuffix(text, attachment.UnsupportedNote)
	}
	e := entry{role: turn.Role, text: text}
	if turn.HasInlineData() {
		e.attachment = "inline image"
	}
	return e
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// State returns the current state.
func (m Model) State() State {
	return m.state
}

// Status returns the status line message.
func (m Model) Status() string {
	return m.status
}
