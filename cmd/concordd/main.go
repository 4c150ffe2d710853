// SPDX-License-Identifier: MIT

// concordd runs a headless client: it keeps the gateway session and
// state cache alive and serves health, status, and metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/concordlib/concord"
	"github.com/concordlib/concord/gateway"
	"github.com/concordlib/concord/internal/log"
	"github.com/concordlib/concord/types"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("concordd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "concordd: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: "concordd",
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("daemon stopped")
}

func run(ctx context.Context, cfg Config) error {
	logger := log.WithComponent("daemon")

	opts := []concord.Option{}
	if cfg.DataDir != "" {
		opts = append(opts, concord.WithPersistence(cfg.DataDir))
	}
	if cfg.Status != "" {
		opts = append(opts, concord.WithPresence(types.Status(cfg.Status)))
	}
	if cfg.MessageCacheSize != 0 {
		opts = append(opts, concord.WithMessageCacheSize(cfg.MessageCacheSize))
	}
	if cfg.MemberCap != 0 {
		opts = append(opts, concord.WithMemberCap(cfg.MemberCap))
	}

	client := concord.New(cfg.Token, opts...)
	client.OnReady(func(r gateway.Ready) {
		logger.Info().
			Str("user", r.User.Tag()).
			Int("guilds", len(r.Guilds)).
			Msg("connected")
	})

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(runCtx) })

	if cfg.Listen != "" {
		srv := newAdminServer(cfg.Listen, client)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.Listen).Msg("admin server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
