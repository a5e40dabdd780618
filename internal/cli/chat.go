// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for mckenzie.
//
// Command: chat
// Short:   Start an interactive chat session
//
// Examples:
//   mckenzie chat                     Start a new conversation
//   mckenzie chat -c conv_123         Continue a stored conversation
//   mckenzie chat -m gemini-1.5-pro   Use a specific model
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /file <path>        Attach a file to the next message
//   /reset              Start the conversation over
//   /history            Show conversation history
//   /quit, /q           Exit chat
//   Ctrl+C              Stop the current reply
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/chat"
	"github.com/mymckenzie/assistant/internal/config"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/render"
	"github.com/mymckenzie/assistant/internal/ui/styles"
	"github.com/mymckenzie/assistant/internal/util"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	modelLabelStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald).
			Bold(true)
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI whose history lives in the config directory.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists command history with 0600 permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func (a *app) chatCommand() *cobra.Command {
	var (
		conversationID string
		models         []string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd.Context(), conversationID, models)
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "continue a stored conversation")
	cmd.Flags().StringSliceVarP(&models, "model", "m", nil, "model to use, repeatable; tried in order")
	return cmd
}

func (a *app) runChat(ctx context.Context, conversationID string, models []string) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	width := terminalWidth(a.out)
	styled := isTerminal(a.out)
	repl := &chatREPL{
		out:  a.out,
		sink: render.NewTerminalSink(a.out, width),
	}
	notifier := chat.NotifierFunc(func(msg string) {
		fmt.Fprintln(a.errOut, WarningStyle.Render(msg))
	})
	renderer := a.renderer(render.NewTerminalMarkup(width, styled), !styled)
	repl.sess, err = a.newSession(conversationID, models, renderer, store, notifier)
	if err != nil {
		return err
	}
	if err := repl.sess.Load(ctx); err != nil {
		return err
	}
	repl.readFile = readAttachment

	repl.printWelcome(a.cfg.Gemini.Models)

	input := NewChatCLI()
	defer input.Close()

	for {
		line, err := input.ReadInput(PromptStyle.Render("you> "))
		if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(a.out, DimStyle.Render("(type /quit or press Ctrl+D to exit)"))
			continue
		}
		if err != nil {
			// EOF (Ctrl+D) or a closed terminal
			fmt.Fprintln(a.out)
			break
		}

		quit, err := repl.handleLine(ctx, line)
		if err != nil {
			DisplayError(a.errOut, err)
		}
		if quit {
			break
		}
	}

	repl.printExitSummary()
	return nil
}

// =============================================================================
// REPL
// =============================================================================

// chatREPL runs one line of interactive input at a time.
type chatREPL struct {
	sess     *chat.Session
	out      io.Writer
	sink     *render.TerminalSink
	readFile func(path string) (*attachment.File, error)

	pending   *attachment.File
	exchanges int
}

// handleLine processes one input line. It reports whether the user asked
// to quit.
func (r *chatREPL) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case strings.HasPrefix(line, "/"):
		return r.handleSlashCommand(ctx, line)
	case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
		return true, nil
	}
	return false, r.send(ctx, line)
}

func (r *chatREPL) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	arg := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	switch command {
	case "/help", "/h", "/?", "/":
		r.printHelp()
	case "/quit", "/q", "/exit":
		return true, nil
	case "/reset", "/clear":
		if err := r.sess.Reset(ctx); err != nil {
			return false, err
		}
		r.pending = nil
		fmt.Fprintln(r.out, commandStyle.Render("[Conversation cleared]"))
	case "/history":
		r.printHistory()
	case "/file":
		if arg == "" {
			return false, &ValidationError{Field: "file", Reason: "missing path", Example: "/file ./order.pdf"}
		}
		f, err := r.readFile(arg)
		if err != nil {
			return false, err
		}
		r.pending = f
		fmt.Fprintf(r.out, "%s %s will be sent with your next message\n",
			commandStyle.Render("[Attached]"), f.Name)
	default:
		return false, errors.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return false, nil
}

// send submits text with any pending attachment and waits for the reply to
// finish typing. Ctrl+C stops the generation or the typing.
func (r *chatREPL) send(ctx context.Context, text string) error {
	sub := chat.Submission{Text: text, File: r.pending}
	r.pending = nil

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-ctx.Done():
		}
	}()

	r.sink.Reset()
	fmt.Fprintln(r.out, modelLabelStyle.Render("assistant"))

	res, err := r.sess.Submit(ctx, sub, r.sink)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(r.out, DimStyle.Render("(stopped)"))
			return nil
		}
		if errors.Is(err, attachment.ErrUploadLimitReached) {
			return err
		}
		// The apology has already been shown.
		log.Debug().Err(err).Msg("chat generation failed")
		return nil
	}
	r.exchanges++

	select {
	case <-res.Handle.Done():
	case <-ctx.Done():
		res.Handle.Cancel()
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, DimStyle.Render("(stopped)"))
	}
	fmt.Fprintln(r.out)
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func (r *chatREPL) printWelcome(models []string) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, welcomeStyle.Render("MyMcKenzie interactive chat"))
	fmt.Fprintln(r.out, RenderSeparator(30))
	fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("Conversation:"), r.sess.ID())
	fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("Models:"), commandStyle.Render(strings.Join(models, " → ")))
	if n := len(r.sess.History()); n > 0 {
		fmt.Fprintf(r.out, "%s %d earlier messages (/history to show)\n", DimStyle.Render("Resumed:"), n)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, DimStyle.Render("Type your question and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(r.out, DimStyle.Render("This is legal information, not legal advice."))
	fmt.Fprintln(r.out)
}

func (r *chatREPL) printHelp() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(r.out, RenderSeparator(20))

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/file <path>", "Attach a file to the next message"},
		{"/reset", "Start the conversation over"},
		{"/history", "Show conversation history"},
		{"/quit, /q", "Exit chat"},
	}
	for _, c := range commands {
		fmt.Fprintf(r.out, "  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			DimStyle.Render(c.desc))
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, DimStyle.Render("Tip: Ctrl+C stops the current reply, Ctrl+D exits"))
	fmt.Fprintln(r.out)
}

// printHistory prints one line per turn, extracted attachment text left out.
func (r *chatREPL) printHistory() {
	history := r.sess.History()
	if len(history) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("[No messages yet]"))
		return
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, TitleStyle.Render("Conversation History"))
	fmt.Fprintln(r.out, RenderSeparator(25))

	for i, turn := range history {
		label := modelLabelStyle.Render("Assistant")
		if turn.Role == model.RoleUser {
			label = userLabelStyle.Render("You")
		}
		text := turn.Text()
		if idx := strings.Index(text, attachment.ContextHeader); idx >= 0 {
			text = text[:idx] + " [+attachment]"
		}
		text = strings.ReplaceAll(strings.TrimSuffix(text, attachment.UnsupportedNote), "\n", " ")
		fmt.Fprintf(r.out, "  %d. %s: %s\n", i+1, label, util.TruncateRunes(text, 100))
	}
	fmt.Fprintln(r.out)
}

func (r *chatREPL) printExitSummary() {
	if r.exchanges > 0 {
		fmt.Fprintf(r.out, "%s %d questions answered. Continue with: mckenzie chat -c %s\n",
			DimStyle.Render("Session:"), r.exchanges, r.sess.ID())
	}
	fmt.Fprintln(r.out, DimStyle.Render("Goodbye!"))
}
