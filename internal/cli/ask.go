// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - The "mckenzie ask" command.
//
// Command: ask <question>
// Short:   Ask a single question
//
// Examples:
//   mckenzie ask "What is a McKenzie Friend?"
//   mckenzie ask --file order.pdf "When is my next hearing?"
//   mckenzie ask --model gemini-1.5-pro "Can I appeal a costs order?"
//   mckenzie ask --json "What is a skeleton argument?"

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mymckenzie/assistant/internal/chat"
	"github.com/mymckenzie/assistant/internal/render"
)

type askOptions struct {
	question       string
	file           string
	models         []string
	conversationID string
	plain          bool
}

func (a *app) askCommand() *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question",
		Example: `  mckenzie ask "What is a McKenzie Friend?"
  mckenzie ask --file order.pdf "When is my next hearing?"
  mckenzie ask -c conv_123 "And what should I bring?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.question = strings.TrimSpace(strings.Join(args, " "))
			if opts.question == "" && opts.file == "" {
				return &ValidationError{
					Field:   "question",
					Reason:  "provide a question, a --file, or both",
					Example: `mckenzie ask "What is a McKenzie Friend?"`,
				}
			}
			return a.runAsk(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "attach a text, PDF or DOCX file")
	f.StringSliceVarP(&opts.models, "model", "m", nil, "model to use, repeatable; tried in order")
	f.StringVarP(&opts.conversationID, "conversation", "c", "", "continue a stored conversation")
	f.BoolVar(&opts.plain, "plain", false, "print the reply without typing or markdown styling")
	return cmd
}

// noticeRecorder prints notices as warnings and keeps them for --json.
type noticeRecorder struct {
	mu     sync.Mutex
	print  func(string)
	events []string
}

func (n *noticeRecorder) Notify(message string) {
	n.mu.Lock()
	n.events = append(n.events, message)
	n.mu.Unlock()
	if n.print != nil {
		n.print(message)
	}
}

func (n *noticeRecorder) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (a *app) runAsk(ctx context.Context, opts askOptions) error {
	sub := chat.Submission{Text: opts.question}
	if opts.file != "" {
		file, err := readAttachment(opts.file)
		if err != nil {
			return err
		}
		sub.File = file
	}

	// Type the reply out only on a terminal; otherwise print it once done.
	styled := !a.jsonMode && !opts.plain && isTerminal(a.out)
	var (
		sink     render.Sink
		buf      *render.Buffer
		renderer *render.Renderer
	)
	if styled {
		width := terminalWidth(a.out)
		sink = render.NewTerminalSink(a.out, width)
		renderer = a.renderer(render.NewTerminalMarkup(width, true), false)
	} else {
		buf = render.NewBuffer()
		sink = buf
		renderer = a.renderer(render.PlainMarkup{}, true)
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	notices := &noticeRecorder{}
	if !a.jsonMode {
		notices.print = func(msg string) { fmt.Fprintln(a.errOut, WarningStyle.Render(msg)) }
	}
	sess, err := a.newSession(opts.conversationID, opts.models, renderer, store, notices)
	if err != nil {
		return err
	}
	if opts.conversationID != "" {
		if err := sess.Load(ctx); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	res, err := sess.Submit(ctx, sub, sink)
	if err != nil {
		if a.jsonMode {
			_ = NewJSONErrorResponse("ask", err).Print(a.out)
		} else if buf != nil && buf.Content() != "" && ctx.Err() == nil {
			fmt.Fprintln(a.out, buf.Content())
		}
		return err
	}

	select {
	case <-res.Handle.Done():
	case <-ctx.Done():
		res.Handle.Cancel()
		fmt.Fprintln(a.out)
		fmt.Fprintln(a.errOut, DimStyle.Render("(stopped)"))
		return ctx.Err()
	}

	switch {
	case a.jsonMode:
		result := AskResult{
			ConversationID: sess.ID(),
			Reply:          res.Reply,
			Models:         opts.models,
			Notices:        notices.all(),
		}
		if len(result.Models) == 0 {
			result.Models = a.cfg.Gemini.Models
		}
		if res.Upload != nil {
			result.Attachment = res.Upload.Name
		}
		return NewJSONResponse("ask", result).Print(a.out)
	case buf != nil:
		fmt.Fprintln(a.out, buf.Content())
	}
	if opts.conversationID == "" && isTerminal(a.errOut) {
		fmt.Fprintln(a.errOut, DimStyle.Render("conversation: "+sess.ID()))
	}
	return nil
}
