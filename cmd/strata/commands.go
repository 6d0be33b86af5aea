// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/stratafs/strata/lib/config"
	"github.com/stratafs/strata/lib/fs"
	"github.com/stratafs/strata/lib/fusefs"
	"github.com/stratafs/strata/lib/kv"
	"github.com/stratafs/strata/lib/secret"
)

// openStore builds the KV stack from configuration: Badger at the
// data directory, wrapped in value encryption when a key file is
// configured.
func openStore(cfg *config.Config, logger *slog.Logger) (store kv.Store, fingerprint []byte, cleanup func(), err error) {
	if cfg.Paths.Data == "" {
		return nil, nil, nil, fmt.Errorf("paths.data is not configured")
	}
	badgerStore, err := kv.OpenBadger(kv.BadgerOptions{Dir: cfg.Paths.Data, Logger: logger})
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup = func() { badgerStore.Close() }

	if cfg.Store.KeyFile == "" {
		return badgerStore, nil, cleanup, nil
	}

	keyFile, err := os.Open(cfg.Store.KeyFile)
	if err != nil {
		cleanup()
		return nil, nil, nil, fmt.Errorf("opening key file: %w", err)
	}
	masterKey, err := secret.NewFromReader(keyFile, kv.KeySize)
	keyFile.Close()
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	compression, err := kv.ParseCompressionTag(cfg.Store.Compression)
	if err != nil {
		masterKey.Close()
		cleanup()
		return nil, nil, nil, err
	}
	encrypted, err := kv.NewEncrypted(badgerStore, masterKey, compression)
	masterKey.Close()
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return encrypted, encrypted.Fingerprint(), cleanup, nil
}

func engineOptions(cfg *config.Config, store kv.Store, fingerprint []byte, logger *slog.Logger) (fs.Options, error) {
	drainInterval, err := cfg.DrainInterval()
	if err != nil {
		return fs.Options{}, err
	}
	return fs.Options{
		Store:          store,
		Logger:         logger,
		KeyFingerprint: fingerprint,
		CacheBudget:    cfg.Cache.BudgetBytes,
		CacheCeiling:   cfg.Cache.CeilingBytes,
		MaxBytes:       cfg.Quota.MaxBytes,
		MaxInodes:      cfg.Quota.MaxInodes,
		DrainInterval:  drainInterval,
	}, nil
}

// openEngine opens the store and the engine; the returned cleanup
// closes both.
func openEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fs.FileSystem, func(), error) {
	store, fingerprint, storeCleanup, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	options, err := engineOptions(cfg, store, fingerprint, logger)
	if err != nil {
		storeCleanup()
		return nil, nil, err
	}
	engine, err := fs.Open(ctx, options)
	if err != nil {
		storeCleanup()
		return nil, nil, err
	}
	cleanup := func() {
		if err := engine.Close(context.Background()); err != nil {
			logger.Error("closing engine", "error", err)
		}
		storeCleanup()
	}
	return engine, cleanup, nil
}

func runFormat(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, fingerprint, cleanup, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	options, err := engineOptions(cfg, store, fingerprint, logger)
	if err != nil {
		return err
	}
	if err := fs.Format(ctx, options); err != nil {
		return err
	}
	fmt.Printf("formatted store at %s\n", cfg.Paths.Data)
	return nil
}

func runInfo(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engine, cleanup, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	usedBytes, inodeCount := engine.StatFS()
	fmt.Printf("used bytes:  %d\ninodes:      %d\n", usedBytes, inodeCount)
	fmt.Println("datasets:")
	printDatasets(engine)
	return nil
}

func printDatasets(engine *fs.FileSystem) {
	defaultID := engine.Admin().DefaultDataset()
	for _, ds := range engine.Admin().Datasets() {
		marker := " "
		if ds.ID == defaultID {
			marker = "*"
		}
		kind := "dataset"
		if ds.IsSnapshot {
			kind = "snapshot"
		}
		access := "rw"
		if ds.ReadOnly {
			access = "ro"
		}
		fmt.Printf(" %s %-20s id=%-4d %s %s root=%d uuid=%s\n",
			marker, ds.Name, ds.ID, kind, access, ds.RootInode, ds.UUID)
	}
}

func runDataset(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("dataset: missing subcommand\n\n%s", usage())
	}
	engine, cleanup, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	admin := engine.Admin()

	switch args[0] {
	case "list":
		printDatasets(engine)
		return nil
	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: strata dataset create <name>")
		}
		ds, err := admin.CreateDataset(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("created dataset %s (id %d)\n", ds.Name, ds.ID)
		return nil
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: strata dataset delete <name>")
		}
		if err := admin.DeleteDataset(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted dataset %s\n", args[1])
		return nil
	case "set-default":
		if len(args) != 2 {
			return fmt.Errorf("usage: strata dataset set-default <name>")
		}
		if err := admin.SetDefaultDataset(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("default dataset is now %s\n", args[1])
		return nil
	default:
		return fmt.Errorf("unknown dataset subcommand %q", args[0])
	}
}

func runSnapshot(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, snapshot bool) error {
	verb := "clone"
	if snapshot {
		verb = "snapshot"
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: strata %s <source> <name>", verb)
	}
	engine, cleanup, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	started := time.Now()
	var ds *fs.Dataset
	if snapshot {
		ds, err = engine.Admin().Snapshot(ctx, args[0], args[1])
	} else {
		ds, err = engine.Admin().Clone(ctx, args[0], args[1])
	}
	if err != nil {
		return err
	}
	fmt.Printf("created %s %s of %s (id %d) in %v\n",
		verb, ds.Name, args[0], ds.ID, time.Since(started).Round(time.Millisecond))
	return nil
}

func runMount(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: strata mount <dataset> <dir>")
	}
	engine, cleanup, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	view, err := engine.ViewByName(args[0])
	if err != nil {
		return err
	}
	server, err := fusefs.Mount(fusefs.Options{
		Mountpoint: args[1],
		View:       view,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("unmounting", "mountpoint", args[1])
	if err := server.Unmount(); err != nil {
		return fmt.Errorf("unmounting %s: %w", args[1], err)
	}
	server.Wait()
	return nil
}

func pflagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func runDebugScan(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	flags := pflagSet("debug-scan")
	prefix := flags.String("prefix", "", "hex key prefix to scan (empty scans everything)")
	max := flags.Int("max", 1000, "maximum records to print")
	if err := flags.Parse(args); err != nil {
		return err
	}

	lo := []byte{0x00}
	hi := []byte{0xff, 0xff}
	if *prefix != "" {
		decoded, err := hex.DecodeString(*prefix)
		if err != nil {
			return fmt.Errorf("decoding --prefix: %w", err)
		}
		lo = decoded
		hi = append(append([]byte(nil), decoded...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	}

	engine, cleanup, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := engine.Admin().DebugScan(ctx, lo, hi, *max)
	if err != nil {
		return err
	}
	for _, record := range records {
		fmt.Printf("%x  (%d bytes)\n", record.Key, len(record.Value))
	}
	fmt.Printf("%d records\n", len(records))
	return nil
}
