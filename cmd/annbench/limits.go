package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/annbench"
	"github.com/hupe1980/annbench/resource"
)

// shutdownTimeout bounds how long the metrics server drains on exit.
const shutdownTimeout = 5 * time.Second

// indexOptions turns the resource and metrics flags into index options. The
// returned stop function shuts the metrics server down and must always be
// called.
func (g *globalFlags) indexOptions(ctx context.Context, logger *annbench.Logger) ([]annbench.Option, func(), error) {
	opts := []annbench.Option{annbench.WithLogger(logger)}
	stop := func() {}

	rc, err := g.controller()
	if err != nil {
		return nil, stop, err
	}
	if rc != nil {
		cfg := rc.Config()
		logger.InfoContext(ctx, "resource limits",
			"memory", humanize.IBytes(uint64(cfg.MemoryLimitBytes)),
			"io_per_sec", humanize.IBytes(uint64(cfg.IOLimitBytesPerSec)),
			"workers", cfg.MaxWorkers,
		)
		opts = append(opts, annbench.WithResourceController(rc))
	}

	if g.metricsAddr == "" {
		return opts, stop, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc, err := annbench.NewPrometheusMetricsCollector(reg, "annbench")
	if err != nil {
		return nil, stop, err
	}
	addr, shutdown, err := serveMetrics(g.metricsAddr, reg)
	if err != nil {
		return nil, stop, err
	}
	logger.InfoContext(ctx, "serving metrics", "addr", addr.String(), "path", "/metrics")
	stop = func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.WarnContext(ctx, "metrics server shutdown", "error", err)
		}
	}
	return append(opts, annbench.WithMetricsCollector(mc)), stop, nil
}

// controller builds a resource controller from the limit flags, or nil when
// no limit is set.
func (g *globalFlags) controller() (*resource.Controller, error) {
	if g.memoryLimit == "" && g.ioLimit == "" {
		return nil, nil
	}
	var cfg resource.Config
	if g.memoryLimit != "" {
		n, err := humanize.ParseBytes(g.memoryLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid --memory-limit %q: %w", g.memoryLimit, err)
		}
		cfg.MemoryLimitBytes = int64(n)
	}
	if g.ioLimit != "" {
		n, err := humanize.ParseBytes(g.ioLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid --io-limit %q: %w", g.ioLimit, err)
		}
		cfg.IOLimitBytesPerSec = int64(n)
	}
	return resource.NewController(cfg), nil
}

// serveMetrics exposes reg on addr under /metrics.
func serveMetrics(addr string, reg *prometheus.Registry) (net.Addr, func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: shutdownTimeout}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()
	return ln.Addr(), srv.Shutdown, nil
}
