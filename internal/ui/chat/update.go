// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mymckenzie/assistant/internal/attachment"
	session "github.com/mymckenzie/assistant/internal/chat"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/render"
)

// =============================================================================
// MESSAGES
// =============================================================================

// submitDoneMsg carries the outcome of Session.Submit.
type submitDoneMsg struct {
	res *session.Result
	err error
}

// frameMsg asks the screen to redraw the live reply.
type frameMsg time.Time

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func submitCmd(ctx context.Context, sess *session.Session, sub session.Submission, sink *render.Buffer) tea.Cmd {
	return func() tea.Msg {
		res, err := sess.Submit(ctx, sub, sink)
		return submitDoneMsg{res: res, err: err}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case submitDoneMsg:
		return m.handleSubmitDone(msg)

	case frameMsg:
		return m.handleFrame()

	case spinner.TickMsg:
		if m.state == StateReady {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancelMgr.cancel()
		m.session.Stop()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		return m.stop(), nil

	case key.Matches(msg, m.keys.Reset):
		return m.reset(), nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles Enter: slash commands, or sending the input with any
// pending attachment.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.state != StateReady {
		return m, nil
	}
	text := strings.TrimSpace(m.input.Value())

	switch {
	case text == "/quit":
		return m, tea.Quit
	case text == "/reset":
		m.input.Reset()
		return m.reset(), nil
	case strings.HasPrefix(text, "/file"):
		m.input.Reset()
		return m.attach(strings.TrimSpace(strings.TrimPrefix(text, "/file"))), nil
	}

	if text == "" && m.pending == nil {
		return m, nil
	}

	sub := session.Submission{Text: text, File: m.pending}
	user := entry{role: model.RoleUser, text: text}
	if m.pending != nil {
		user.attachment = m.pending.Name
	}
	m.pending = nil

	sink := render.NewBuffer()
	m.entries = append(m.entries, user, entry{role: model.RoleModel, sink: sink})
	m.state = StateWaiting
	m.setStatus(statusInfo, "")
	m.input.Reset()
	m.refresh()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelMgr.set(cancel)

	return m, tea.Batch(submitCmd(ctx, m.session, sub, sink), m.spinner.Tick, frameTick())
}

// attach reads path as the attachment of the next message.
func (m Model) attach(path string) Model {
	if path == "" {
		m.setStatus(statusError, "usage: /file <path>")
		return m
	}
	data, err := m.readFn(path)
	if err != nil {
		m.setStatus(statusError, "cannot read "+path+": "+err.Error())
		return m
	}
	m.pending = &attachment.File{Name: filepath.Base(path), Data: data}
	m.setStatus(statusNotice, "attached "+m.pending.Name+"; it will be sent with your next message")
	return m
}

func (m Model) handleSubmitDone(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	m.cancelMgr.cancel()
	m.drainNotices()

	if msg.err != nil {
		m.state = StateReady
		switch {
		case errors.Is(msg.err, context.Canceled):
			m.finishLive("(stopped)")
			m.setStatus(statusInfo, "stopped")
		case errors.Is(msg.err, attachment.ErrUploadLimitReached), errors.Is(msg.err, session.ErrEmptySubmission):
			// nothing was sent
			m.entries = m.entries[:len(m.entries)-2]
			if m.status == "" {
				m.setStatus(statusError, msg.err.Error())
			}
		default:
			log.Debug().Err(msg.err).Msg("chat generation failed")
			m.setStatus(statusError, msg.err.Error())
		}
		m.refresh()
		return m, nil
	}

	m.handle = msg.res.Handle
	m.state = StateTyping
	m.refresh()
	return m, nil
}

func (m Model) handleFrame() (tea.Model, tea.Cmd) {
	m.drainNotices()
	if m.state == StateTyping && m.handle != nil {
		select {
		case <-m.handle.Done():
			m.state = StateReady
			m.handle = nil
		default:
		}
	}
	m.refresh()
	if m.state == StateReady {
		return m, nil
	}
	return m, frameTick()
}

// stop cancels the generation or the typing in progress. A stopped reply
// keeps what was shown.
func (m Model) stop() Model {
	switch m.state {
	case StateWaiting:
		m.cancelMgr.cancel()
	case StateTyping:
		m.session.Stop()
		m.state = StateReady
		m.handle = nil
		m.setStatus(statusInfo, "stopped")
		m.refresh()
	}
	return m
}

// reset clears the conversation. It is refused while a reply is pending.
func (m Model) reset() Model {
	if m.state != StateReady {
		m.setStatus(statusNotice, "press Esc to stop the current reply first")
		return m
	}
	if err := m.session.Reset(context.Background()); err != nil {
		m.setStatus(statusError, "reset failed: "+err.Error())
		return m
	}
	m.entries = nil
	m.pending = nil
	m.setStatus(statusInfo, "new conversation")
	m.refresh()
	return m
}

// finishLive replaces an unanswered live reply with text.
func (m *Model) finishLive(text string) {
	if n := len(m.entries); n > 0 && m.entries[n-1].sink != nil {
		last := &m.entries[n-1]
		if last.sink.Content() == session.ThinkingPlaceholder {
			last.sink = nil
			last.text = text
		}
	}
}

func (m *Model) drainNotices() {
	for _, n := range m.notices.drain() {
		m.setStatus(statusNotice, n)
	}
}

func (m *Model) setStatus(kind statusKind, msg string) {
	m.statusKind = kind
	m.status = msg
}

// resize lays out the viewport and input for a width x height terminal.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = max(width-4, 10)
	m.viewport.Width = width
	m.viewport.Height = max(height-headerHeight-footerHeight, 3)
	m.refresh()
}
