// Command dpfs-nfs runs the NFSv4.1 passthrough backend (spec.md §4.7):
// every FUSE request the HAL delivers is translated into one or more
// COMPOUND operations against the configured NFS export.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dpfs-project/dpfs/backend/nfs"
	"github.com/dpfs-project/dpfs/internal/bringup"
	"github.com/dpfs-project/dpfs/internal/config"
	"github.com/dpfs-project/dpfs/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dpfs-nfs:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("c", "", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return err
	}

	b, err := nfs.New(context.Background(), nfs.Config{
		Server:   cfg.NFS.Server,
		Export:   cfg.NFS.Export,
		NThreads: cfg.SnapHAL.NThreads,
	})
	if err != nil {
		return fmt.Errorf("nfs backend: %w", err)
	}

	return bringup.Run(bringup.Options{
		Metrics:  cfg.Metrics,
		HAL:      cfg.SnapHAL,
		RVFS:     cfg.RVFS,
		Handlers: b.Handlers(),
	})
}
