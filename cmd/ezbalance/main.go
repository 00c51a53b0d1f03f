// Package main runs a synthetic load through an ezbalance pool and reports
// how it was spread across workers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"github.com/pgvanniekerk/ezbalance/internal/api"
	"github.com/pgvanniekerk/ezbalance/internal/config"
	"github.com/pgvanniekerk/ezbalance/pkg/ezbalance"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	version = "dev"
)

// flags holds command-line overrides. Zero values and -1 mean "not set".
type flags struct {
	configFile  string
	workers     int
	threshold   int
	tasks       int
	delay       time.Duration
	addr        string
	logLevel    string
	showVersion bool
}

func main() {
	f := parseFlags(flag.CommandLine, os.Args[1:])

	if f.showVersion {
		fmt.Printf("ezbalance version %s\n", version)
		return
	}

	settings, err := buildSettings(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stderr, settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger, os.Stdout); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags defines and parses the command-line flags on fs.
func parseFlags(fs *flag.FlagSet, args []string) flags {
	var f flags

	fs.StringVar(&f.configFile, "config", "", "config file path (YAML/JSON)")
	fs.IntVar(&f.workers, "workers", 0, "number of workers (default: CPU count)")
	fs.IntVar(&f.threshold, "threshold", -1, "per-worker queue length at which a worker is full (0 disables backpressure)")
	fs.IntVar(&f.tasks, "tasks", 0, "number of tasks to submit")
	fs.DurationVar(&f.delay, "delay", 0, "simulated work per task (e.g. 5ms)")
	fs.StringVar(&f.addr, "addr", "", "serve /metrics, /api/stats and /ws on this address while running")
	fs.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVar(&f.showVersion, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), `ezbalance - load-balancing task pool demo

Usage:
  ezbalance [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), `
Examples:
  ezbalance -workers 8 -threshold 4 -tasks 10000 -delay 1ms
  ezbalance -config pool.yaml -addr :9090
`)
	}

	_ = fs.Parse(args)
	return f
}

// buildSettings loads the config file, if any, and applies flag overrides.
func buildSettings(f flags) (config.Settings, error) {
	settings := config.DefaultSettings()

	if f.configFile != "" {
		fileConfig, err := config.LoadFile(f.configFile)
		if err != nil {
			return settings, err
		}
		if settings, err = fileConfig.ToSettings(); err != nil {
			return settings, err
		}
	}

	if f.workers > 0 {
		settings.Workers = f.workers
	}
	if f.threshold >= 0 {
		settings.Threshold = f.threshold
	}
	if f.tasks > 0 {
		settings.Tasks = f.tasks
	}
	if f.delay > 0 {
		settings.Delay = f.delay
	}
	if f.addr != "" {
		settings.MetricsEnabled = true
		settings.Addr = f.addr
	}
	if f.logLevel != "" {
		if err := settings.LogLevel.UnmarshalText([]byte(f.logLevel)); err != nil {
			return settings, fmt.Errorf("invalid -log-level: %w", err)
		}
	}

	return settings, nil
}

// newLogger builds the process logger from settings.
func newLogger(w io.Writer, settings config.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: settings.LogLevel}
	if settings.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// run builds the pool, drives the load, optionally serves the API and writes a
// summary to out.
func run(ctx context.Context, settings config.Settings, logger *slog.Logger, out io.Writer) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pool, err := ezbalance.FromConfig(settings,
		ezbalance.WithLogger(logger),
		ezbalance.WithMetrics(settings.Namespace, reg),
		ezbalance.WithContext(ctx),
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	if settings.MetricsEnabled {
		server := api.NewServer(settings.Addr, pool, api.Options{
			Gatherer:       reg,
			StreamInterval: settings.StreamInterval,
			Logger:         logger,
		})
		g.Go(func() error {
			return server.Start(gctx)
		})
	}

	var result loadResult
	g.Go(func() error {
		// Stops the API server once the load is done.
		defer cancel()

		var err error
		result, err = runLoad(gctx, pool, settings.Tasks, settings.Delay)
		return err
	})

	loadErr := g.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
	defer cancelShutdown()

	if err := pool.Shutdown(shutdownCtx); err != nil {
		return errors.Join(loadErr, err)
	}

	printSummary(out, settings, result, pool.Stats())

	if errors.Is(loadErr, context.Canceled) {
		return nil
	}
	return loadErr
}
