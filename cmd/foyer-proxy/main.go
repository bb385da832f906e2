// Copyright 2026 The Foyer Authors
// SPDX-License-Identifier: Apache-2.0

// Foyer-proxy is the session proxy and authentication broker that
// fronts a game server. It exposes a token-authenticated control port
// for the game server and mints an ephemeral, token-guarded WebSocket
// endpoint per player session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/foyer-project/foyer/gateway"
	"github.com/foyer-project/foyer/lib/config"
	"github.com/foyer-project/foyer/lib/version"
	"github.com/foyer-project/foyer/session"
	"github.com/foyer-project/foyer/ticket"
	"github.com/foyer-project/foyer/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var showVersion bool

	pflag.StringVar(&configPath, "config", "", "path to config file (falls back to FOYER_CONFIG)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("foyer-proxy %s\n", version.Full())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("starting foyer-proxy",
		"version", version.Info(),
		"environment", cfg.Environment,
		"control_address", cfg.Control.Address,
		"trust_mode", cfg.Session.TrustMode,
	)
	if cfg.Session.TrustMode {
		logger.Warn("trust mode is enabled: every connection is admitted without a ticket claim")
	}

	sessionConfig := session.Config{
		TrustMode:     cfg.Session.TrustMode,
		ProtocolToken: cfg.Session.ProtocolToken,
		Capacity:      cfg.Session.Capacity,
		Whitelist:     wire.ClientWhitelist(),
		Logger:        logger,
	}
	if !cfg.Session.TrustMode {
		sessionConfig.Tickets = ticket.NewStore()
		sessionConfig.Claimer = ticket.NewClaimer(cfg.Auth.BaseURL, cfg.ClaimTimeout(), logger)
	}

	proxy := gateway.New(gateway.Config{
		ControlAddress: cfg.Control.Address,
		ControlToken:   cfg.Control.Token,
		WorkerHost:     cfg.Workers.Host,
		SpawnTimeout:   cfg.SpawnTimeout(),
		Session:        sessionConfig,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := proxy.Serve(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	logger.Info("foyer-proxy stopped")
	return nil
}
