// Command dpfs-null runs the minimal backend: it proves a device can
// attach to the HAL and answer the wire ABI at all, replying -ENOSYS to
// every INIT and nothing else, grounded on
// original_source/virtiofs_nulldev/main.c.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dpfs-project/dpfs/backend/null"
	"github.com/dpfs-project/dpfs/internal/bringup"
	"github.com/dpfs-project/dpfs/internal/config"
	"github.com/dpfs-project/dpfs/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "dpfs-null:", err)
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

	b := null.New()

	return bringup.Run(bringup.Options{
		Metrics:  cfg.Metrics,
		HAL:      cfg.SnapHAL,
		RVFS:     cfg.RVFS,
		Handlers: b.Handlers(),
	})
}
