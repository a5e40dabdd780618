// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mymckenzie/assistant/internal/render"
	uichat "github.com/mymckenzie/assistant/internal/ui/chat"
)

func (a *app) tuiCommand() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen chat (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd.Context(), conversationID)
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue a stored conversation")
	return cmd
}

func (a *app) runTUI(ctx context.Context, conversationID string) error {
	if !IsTTY() || !isTerminal(os.Stdout) {
		return &ValidationError{Field: "terminal", Reason: "the chat screen needs an interactive terminal", Example: `mckenzie ask "..."`}
	}

	// Console logs would draw over the screen.
	logOut := io.Discard
	if err := a.setupLogging(a.cfg, logOut); err != nil {
		return &ConfigError{Err: err}
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	width := terminalWidth(os.Stdout)
	markup := render.NewTerminalMarkup(width-4, true)
	notices := uichat.NewNoticeQueue()
	sess, err := a.newSession(conversationID, nil, a.renderer(markup, false), store, notices)
	if err != nil {
		return err
	}
	if err := sess.Load(ctx); err != nil {
		return err
	}

	m := uichat.New(sess, uichat.Options{Markup: markup, Notices: notices})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "chat screen")
	}
	sess.Stop()
	return nil
}
