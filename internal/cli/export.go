// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export.go - The "mckenzie export" and "mckenzie list" commands.
//
// Examples:
//   mckenzie list
//   mckenzie export conv_123                     Markdown file in the current directory
//   mckenzie export conv_123 --format html -o hearing.html
//   mckenzie export conv_123 --format json -o -  JSON to stdout

package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mymckenzie/assistant/internal/export"
	"github.com/mymckenzie/assistant/internal/model"
	"github.com/mymckenzie/assistant/internal/storage"
	"github.com/mymckenzie/assistant/internal/util"
)

func (a *app) exportCommand() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export a conversation as Markdown, HTML or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExport(cmd.Context(), args[0], format, output)
		},
	}
	cmd.Flags().StringVar(&format, "format", "md", "md, html or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file or directory; - for stdout")
	return cmd
}

func (a *app) runExport(ctx context.Context, id, formatName, output string) error {
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return &ValidationError{Field: "format", Value: formatName, Reason: "use md, html or json"}
	}
	conv, err := a.loadConversation(ctx, id)
	if err != nil {
		return err
	}

	if output == "-" {
		exporter, err := export.New(format, export.DefaultOptions())
		if err != nil {
			return err
		}
		data, err := exporter.Export(conv)
		if err != nil {
			return errors.Wrap(err, "export failed")
		}
		_, err = a.out.Write(data)
		return err
	}

	path, err := export.Write(conv, format, output, export.DefaultOptions())
	if err != nil {
		return err
	}
	return OutputJSON(a.out, a.jsonMode, "export", func() (interface{}, error) {
		if !a.jsonMode {
			fmt.Fprintf(a.out, "%s Exported %d messages to %s\n", SuccessStyle.Render("[OK]"), conv.TurnCount(), path)
		}
		return map[string]interface{}{"path": path, "turns": conv.TurnCount()}, nil
	})
}

func (a *app) loadConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if err := storage.ValidateID(id); err != nil {
		return nil, &ValidationError{Field: "conversation", Value: id, Reason: "not a conversation ID"}
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	conv, err := store.Load(ctx, a.userID, id)
	if errors.Is(err, storage.ErrConversationNotFound) {
		return nil, &NotFoundError{Resource: "conversation", ID: id}
	}
	return conv, err
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			return OutputJSON(a.out, a.jsonMode, "list", func() (interface{}, error) {
				metas, err := store.List(cmd.Context(), a.userID)
				if err != nil {
					return nil, err
				}
				if !a.jsonMode {
					a.printConversations(metas)
				}
				return metas, nil
			})
		},
	}
}

func (a *app) printConversations(metas []storage.ConversationMeta) {
	if len(metas) == 0 {
		fmt.Fprintln(a.out, DimStyle.Render("No conversations yet. Start one with: mckenzie chat"))
		return
	}
	rows := make([][]string, 0, len(metas))
	for _, m := range metas {
		rows = append(rows, []string{
			m.ID,
			m.UpdatedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprint(m.TurnCount),
			util.TruncateWidth(m.Title, 50),
		})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "UPDATED", "MESSAGES", "TITLE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TitleStyle.PaddingRight(2)
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})
	fmt.Fprintln(a.out, t.String())
}
