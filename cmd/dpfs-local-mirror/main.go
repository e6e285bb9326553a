// Command dpfs-local-mirror runs the passthrough backend (spec.md
// §4.8): FUSE requests are serviced against a real directory tree on
// the host via io_uring-submitted data-plane operations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dpfs-project/dpfs/backend/passthrough"
	"github.com/dpfs-project/dpfs/internal/bringup"
	"github.com/dpfs-project/dpfs/internal/config"
	"github.com/dpfs-project/dpfs/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dpfs-local-mirror:", err)
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

	b, err := passthrough.New(passthrough.Config{
		Dir:         cfg.LocalMirror.Dir,
		AttrTimeout: cfg.LocalMirror.AttrTimeout(),
		QueueDepth:  uint32(cfg.SnapHAL.QueueDepth),
	})
	if err != nil {
		return fmt.Errorf("passthrough backend: %w", err)
	}
	defer b.Close()

	return bringup.Run(bringup.Options{
		Metrics:  cfg.Metrics,
		HAL:      cfg.SnapHAL,
		RVFS:     cfg.RVFS,
		Handlers: b.Handlers(),
	})
}
