// Command dpfs-kv runs the illustrative in-memory key-value backend
// (spec.md §2): a flat single-directory namespace keyed by an FNV-1a
// hash of the filename, grounded on original_source/dpfs_kv/main.cpp.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dpfs-project/dpfs/backend/kv"
	"github.com/dpfs-project/dpfs/internal/bringup"
	"github.com/dpfs-project/dpfs/internal/config"
	"github.com/dpfs-project/dpfs/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dpfs-kv:", err)
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

	b := kv.New(kv.Config{Name: cfg.KV.Name})
	defer b.Close()

	return bringup.Run(bringup.Options{
		Metrics:  cfg.Metrics,
		HAL:      cfg.SnapHAL,
		RVFS:     cfg.RVFS,
		Handlers: b.Handlers(),
	})
}
