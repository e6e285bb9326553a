// Package bringup is the shared tail every cmd/dpfs-* main() runs once
// its backend is constructed: start the optional Prometheus endpoint,
// build the HAL from internal/config.SnapHALConfig, and block in its
// Loop until a shutdown signal drains every device. Factored out because
// all five binaries did this identically.
package bringup

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dpfs-project/dpfs/backend/rpctunnel"
	"github.com/dpfs-project/dpfs/internal/config"
	"github.com/dpfs-project/dpfs/internal/devserver"
	"github.com/dpfs-project/dpfs/internal/dispatch"
	"github.com/dpfs-project/dpfs/internal/fuseops"
	"github.com/dpfs-project/dpfs/internal/hal"
	"github.com/dpfs-project/dpfs/internal/logger"
	"github.com/dpfs-project/dpfs/internal/metrics"
)

// Options configures one Run call.
type Options struct {
	Metrics  config.MetricsConfig
	HAL      config.SnapHALConfig
	RVFS     config.RVFSConfig
	Handlers map[fuseops.Opcode]dispatch.Handler
	// Capable overrides devserver.DefaultCapable; zero keeps the default.
	Capable uint32
}

// Run starts metrics (if enabled) and either answers requests forwarded
// over the eRPC-style rvfs transport (when RVFS.DPUURI names a listen
// address, the Go analogue of original_source/dpfs_hal/src/rvfs.cpp's
// gateway role) or builds the dispatch/session glue and local HAL
// around the handler table (the default, device-polled path). The two
// are mutually exclusive per deployment: the rvfs transport replaces the
// local virtio device loop entirely, it does not run alongside it.
func Run(opts Options) error {
	reg := metrics.New()
	if opts.Metrics.Enabled {
		srv := startMetricsServer(opts.Metrics.Port, reg)
		defer srv.Shutdown(context.Background())
	}

	if opts.RVFS.DPUURI != "" {
		return runGateway(opts.RVFS.DPUURI, opts.Handlers)
	}

	var srv *devserver.Server
	if opts.Capable != 0 {
		srv = devserver.NewWithCapable(opts.Handlers, opts.Capable)
	} else {
		srv = devserver.New(opts.Handlers)
	}

	devices := toUint16(opts.HAL.PFIDs)
	mockDevices := toUint16(opts.HAL.MockPFIDs)

	h := hal.New(hal.Params{
		NThreads:            opts.HAL.NThreads,
		PollingIntervalUsec: opts.HAL.PollingIntervalUsec,
		Devices:             devices,
		MockDevices:         mockDevices,
		Handler:             srv.Handler(),
		RegisterDevice: func(deviceID uint16) {
			logger.Info("registering device", "device", deviceID, "tag", opts.HAL.Tag)
		},
	})

	logger.Info("dpfs device emulation starting", "tag", opts.HAL.Tag, "devices", devices)
	h.Loop()
	logger.Info("dpfs device emulation stopped", "tag", opts.HAL.Tag)
	return nil
}

// runGateway answers requests forwarded by a cmd/dpfs-rvfs DPU-side
// process instead of polling a local virtio device directly.
func runGateway(listenAddr string, handlers map[fuseops.Opcode]dispatch.Handler) error {
	srv, err := rpctunnel.NewServer(listenAddr, handlers)
	if err != nil {
		return err
	}
	defer srv.Close()
	logger.Info("dpfs rvfs gateway listening", "addr", listenAddr)
	return srv.Serve()
}

func toUint16(ids []int) []uint16 {
	out := make([]uint16, len(ids))
	for i, id := range ids {
		out[i] = uint16(id)
	}
	return out
}

func startMetricsServer(port int, reg *metrics.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	srv := &http.Server{Addr: portAddr(port), Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	return srv
}

func portAddr(port int) string {
	if port == 0 {
		port = 9090
	}
	return ":" + strconv.Itoa(port)
}
