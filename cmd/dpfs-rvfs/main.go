// Command dpfs-rvfs is the "DPU" side of the rvfs transport (spec.md
// §6's `[rvfs]` section), grounded on
// original_source/dpfs_rvfs/dpu.cpp: it owns the local virtio-fs device
// loop and forwards every request across internal/rpctransport to a
// remote gateway (the peer process's [rvfs] DPUURI listener, answered by
// bringup.Run's runGateway branch) instead of answering it itself.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dpfs-project/dpfs/backend/rpctunnel"
	"github.com/dpfs-project/dpfs/internal/bringup"
	"github.com/dpfs-project/dpfs/internal/config"
	"github.com/dpfs-project/dpfs/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dpfs-rvfs:", err)
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

	if cfg.RVFS.TwoThreads {
		logger.Info("dpfs-rvfs: two_threads requested; this port drives the transport on the HAL's own polling threads rather than a dedicated eRPC background thread")
	}

	b, err := rpctunnel.New(rpctunnel.Config{RemoteURI: cfg.RVFS.RemoteURI})
	if err != nil {
		return fmt.Errorf("rvfs forwarding backend: %w", err)
	}
	defer b.Close()

	return bringup.Run(bringup.Options{
		Metrics:  cfg.Metrics,
		HAL:      cfg.SnapHAL,
		Handlers: b.Handlers(),
	})
}
