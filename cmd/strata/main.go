// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Command strata is the administrative CLI: it formats stores,
// manages datasets and snapshots, mounts a dataset over FUSE, and
// runs raw debug scans. Every subcommand is a thin translation onto
// the engine's admin surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/stratafs/strata/lib/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() string {
	return `usage: strata --config <file> <command> [args]

commands:
  format                       initialize an empty store
  info                         print store counters and datasets
  dataset list                 list datasets and snapshots
  dataset create <name>        create an empty dataset
  dataset delete <name>        delete a dataset or snapshot
  dataset set-default <name>   make a dataset the default
  snapshot <source> <name>     snapshot a dataset (read-only)
  clone <source> <name>        writable copy of a dataset
  mount <dataset> <dir>        mount a dataset over FUSE
  debug-scan [--prefix hex]    dump raw keys (tooling)
`
}

func run() error {
	flags := pflag.NewFlagSet("strata", pflag.ContinueOnError)
	configPath := flags.String("config", os.Getenv("STRATA_CONFIG"), "configuration file")
	logLevel := flags.String("log-level", "", "override the configured log level")
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage()) }
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	args := flags.Args()
	if len(args) == 0 {
		return fmt.Errorf("missing command\n\n%s", usage())
	}
	if *configPath == "" {
		return fmt.Errorf("--config or STRATA_CONFIG is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "format":
		return runFormat(ctx, cfg, logger)
	case "info":
		return runInfo(ctx, cfg, logger)
	case "dataset":
		return runDataset(ctx, cfg, logger, args[1:])
	case "snapshot":
		return runSnapshot(ctx, cfg, logger, args[1:], true)
	case "clone":
		return runSnapshot(ctx, cfg, logger, args[1:], false)
	case "mount":
		return runMount(ctx, cfg, logger, args[1:])
	case "debug-scan":
		return runDebugScan(ctx, cfg, logger, args[1:])
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage())
	}
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}
