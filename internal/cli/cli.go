// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command and shared wiring for mckenzie.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mymckenzie/assistant/internal/attachment"
	"github.com/mymckenzie/assistant/internal/chat"
	"github.com/mymckenzie/assistant/internal/config"
	"github.com/mymckenzie/assistant/internal/gemini"
	"github.com/mymckenzie/assistant/internal/logging"
	"github.com/mymckenzie/assistant/internal/orchestrator"
	"github.com/mymckenzie/assistant/internal/render"
	"github.com/mymckenzie/assistant/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// DefaultUserID owns conversations created from the command line.
const DefaultUserID = "local"

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// app carries the global flags and the loaded configuration to every
// command.
type app struct {
	cfgPath  string
	logLevel string
	userID   string
	jsonMode bool

	cfg *config.Config

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// newProvider replaces the Gemini client, e.g. in tests.
	newProvider func(cfg *config.Config) orchestrator.Provider
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		DisplayError(os.Stderr, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// NewRootCommand builds the mckenzie command tree.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}
	return a.rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "mckenzie",
		Short: "Legal information assistant for litigants in person",
		Long: `mckenzie answers questions about court procedure using Gemini models.

Questions can carry a text, PDF or Word attachment; its text is extracted
and sent along with the question. Replies type out in the terminal.

mckenzie provides legal information, not legal advice.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return a.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd.Context(), "")
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default ~/.mckenzie/config.toml)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&a.userID, "user", DefaultUserID, "user ID owning the conversations")
	pf.BoolVar(&a.jsonMode, "json", false, "print machine-readable JSON")

	root.AddCommand(
		a.askCommand(),
		a.chatCommand(),
		a.tuiCommand(),
		a.serveCommand(),
		a.exportCommand(),
		a.listCommand(),
		a.configCommand(),
		a.versionCommand(),
	)
	return root
}

// load reads the configuration and sets up logging.
func (a *app) load() error {
	var (
		cfg *config.Config
		err error
	)
	if a.cfgPath != "" {
		cfg, err = config.LoadFromPath(a.cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return &ConfigError{Err: err}
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := storage.ValidateID(a.userID); err != nil {
		return &ValidationError{Field: "user", Value: a.userID, Reason: "use letters, digits, '-' and '_'"}
	}

	if err := a.setupLogging(cfg, a.errOut); err != nil {
		return &ConfigError{Err: err}
	}
	a.cfg = cfg
	return nil
}

func (a *app) setupLogging(cfg *config.Config, w io.Writer) error {
	var opts []logging.Option
	if cfg.Log.File != "" {
		opts = append(opts, logging.WithFile(cfg.Log.File))
	}
	if !isTerminal(w) || !ColorsEnabled() {
		opts = append(opts, logging.WithNoColor())
	}
	return logging.Setup(cfg.Log.Level, cfg.Log.Format, w, opts...)
}

// configFile returns the file the configuration was or would be read from.
func (a *app) configFile() (string, error) {
	if a.cfgPath != "" {
		return a.cfgPath, nil
	}
	return config.Path()
}

// =============================================================================
// PIPELINE WIRING
// =============================================================================

func (a *app) provider() orchestrator.Provider {
	if a.newProvider != nil {
		return a.newProvider(a.cfg)
	}
	g := a.cfg.Gemini
	return gemini.NewClient(g.APIKey).
		WithBaseURL(g.BaseURL).
		WithProxyURL(g.ProxyURL).
		WithTimeout(g.Timeout.Duration)
}

func (a *app) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.provider(),
		orchestrator.WithRetryCeiling(a.cfg.Retry.Ceiling),
		orchestrator.WithBaseDelay(a.cfg.Retry.BaseDelay.Duration),
		orchestrator.WithClassifier(a.cfg.Classifier()),
	)
}

// renderer builds the typing renderer. Instant renderers skip the delay
// between steps, for output that is not a terminal.
func (a *app) renderer(markup render.Markup, instant bool) *render.Renderer {
	minDelay, maxDelay := a.cfg.Render.MinDelay.Duration, a.cfg.Render.MaxDelay.Duration
	if instant {
		minDelay, maxDelay = 0, 0
	}
	return render.New(
		render.WithMarkup(markup),
		render.WithMaxChunk(a.cfg.Render.MaxChunk),
		render.WithDelay(minDelay, maxDelay),
	)
}

func (a *app) openStore() (storage.Store, error) {
	s := a.cfg.Storage
	store, err := storage.Open(storage.Options{
		Backend:          s.Backend,
		Dir:              s.Dir,
		SQLitePath:       s.SQLitePath,
		MaxConversations: s.MaxConversations,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open conversation store")
	}
	return store, nil
}

// newSession wires a chat session for convID. An empty convID starts a new
// conversation.
func (a *app) newSession(convID string, models []string, renderer *render.Renderer, store storage.Store, notifier chat.Notifier) (*chat.Session, error) {
	if convID == "" {
		convID = storage.NewConversationID()
	} else if err := storage.ValidateID(convID); err != nil {
		return nil, &ValidationError{Field: "conversation", Value: convID, Reason: "not a conversation ID"}
	}
	if len(models) == 0 {
		models = a.cfg.Gemini.Models
	}

	att := a.cfg.Attachments
	opts := []chat.Option{
		chat.WithNotifier(notifier),
		chat.WithExtractor(attachment.NewExtractor(attachment.WithMaxPDFPages(att.MaxPDFPages))),
		chat.WithQuota(attachment.NewQuota(att.FreeUploadLimit, att.Premium)),
	}
	if store != nil {
		opts = append(opts, chat.WithStore(store))
	}
	if att.UploadDir != "" {
		blobs, err := storage.NewBlobStore(att.UploadDir)
		if err != nil {
			log.Warn().Err(err).Msg("attachments will not be kept")
		} else {
			opts = append(opts, chat.WithUploader(blobs))
		}
	}

	return chat.New(chat.Config{
		UserID:         a.userID,
		ConversationID: convID,
		Models:         models,
		SystemPrompt:   a.cfg.Gemini.SystemPrompt,
		MaxChars:       att.MaxChars,
	}, a.orchestrator(), renderer, opts...), nil
}

// readAttachment loads a file to send with a question.
func readAttachment(path string) (*attachment.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &NotFoundError{Resource: "file", ID: path}
	}
	if info.IsDir() {
		return nil, &ValidationError{Field: "file", Value: path, Reason: "is a directory"}
	}
	if info.Size() > storage.MaxUploadSize {
		return nil, &ValidationError{
			Field:  "file",
			Value:  path,
			Reason: fmt.Sprintf("larger than %d MB", storage.MaxUploadSize>>20),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return &attachment.File{Name: filepath.Base(path), Data: data}, nil
}

// =============================================================================
// VERSION
// =============================================================================

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			}
			if a.jsonMode {
				return NewJSONResponse("version", info).Print(a.out)
			}
			fmt.Fprintf(a.out, "mckenzie %s (commit %s, built %s, %s %s)\n",
				info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
			return nil
		},
	}
}
