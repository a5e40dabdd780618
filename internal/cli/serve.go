// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// serve.go - The "mckenzie serve" command.
//
// Examples:
//   mckenzie serve
//   mckenzie serve --addr :9000 --static ./public
//   GEMINI_API_KEY=... mckenzie serve --watch=false

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mymckenzie/assistant/internal/config"
	"github.com/mymckenzie/assistant/internal/server"
	"github.com/mymckenzie/assistant/internal/storage"
)

// shutdownTimeout bounds the wait for in-flight requests on exit.
const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr      string
	staticDir string
	watch     bool
}

func (a *app) serveCommand() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and serve the web pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "listen address (default from config, :8000)")
	f.StringVar(&opts.staticDir, "static", "", "directory of static pages")
	f.BoolVar(&opts.watch, "watch", true, "reload models, prompt and retry policy when the config file changes")
	return cmd
}

func (a *app) runServe(ctx context.Context, opts serveOptions) error {
	cfg := a.cfg.Clone()
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.staticDir != "" {
		cfg.Server.StaticDir = opts.staticDir
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.NewServer(cfg, store)
	if a.newProvider != nil {
		srv.WithProvider(a.newProvider(cfg))
	}
	if dir := cfg.Attachments.UploadDir; dir != "" {
		blobs, err := storage.NewBlobStore(dir)
		if err != nil {
			return errors.Wrap(err, "open upload directory")
		}
		srv.WithBlobStore(blobs)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.watch {
		a.watchConfig(ctx, srv)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return <-errCh
}

// watchConfig reloads the server configuration whenever the config file
// changes. Nothing is watched when there is no config file.
func (a *app) watchConfig(ctx context.Context, srv *server.Server) {
	path, err := a.configFile()
	if err != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		log.Debug().Str("path", path).Msg("no config file to watch")
		return
	}
	go func() {
		err := config.Watch(ctx, path, srv.Reconfigure)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("path", path).Msg("config watch stopped")
		}
	}()
}
