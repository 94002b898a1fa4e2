package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/htmltable2csv/config"
	"github.com/aluiziolira/htmltable2csv/parser"
	"github.com/aluiziolira/htmltable2csv/pipeline"
	"github.com/aluiziolira/htmltable2csv/source"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run(ctx, os.Stdout, os.Stderr)
}

// run performs one conversion and prints its console line to stdout. When a
// metrics address is configured the endpoint stays up after the line is
// printed until ctx is canceled. Failures never change the exit status.
func run(ctx context.Context, stdout, logOut io.Writer) {
	srv, line := convert(ctx, logOut)
	fmt.Fprintln(stdout, line)
	if srv == nil {
		return
	}

	slog.Warn("serving metrics until interrupted", slog.String("addr", srv.Addr))
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func convert(ctx context.Context, logOut io.Writer) (*http.Server, string) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(logOut, "warning: .env could not be loaded: %v\n", err)
	}

	cfg, err := config.Load(os.Getenv(config.EnvPrefix + "_CONFIG"))
	if err != nil {
		return nil, pipeline.Report(nil, err)
	}

	logger, level := newLogger(logOut, cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return nil, pipeline.Report(nil, err)
	}

	registry := prometheus.NewRegistry()
	loader := source.NewLoader(cfg, source.NewMetrics(registry))
	tableParser, err := parser.New(cfg.CacheSize)
	if err != nil {
		return nil, pipeline.Report(nil, err)
	}
	if err := tableParser.Register(registry); err != nil {
		return nil, pipeline.Report(nil, err)
	}
	conv := pipeline.NewConverter(cfg, loader, tableParser, pipeline.NewMetrics(registry))

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer, err = serveMetrics(cfg.MetricsAddr, registry)
		if err != nil {
			slog.Error("metrics server disabled", slog.Any("error", err))
		}
	}

	slog.Debug("starting conversion",
		slog.String("input", cfg.InputPath),
		slog.String("output", cfg.OutputPath),
	)

	result, err := conv.Convert(ctx)
	if err != nil {
		slog.Error("conversion failed", slog.Any("error", err))
	} else {
		slog.Debug("conversion finished",
			slog.String("outcome", result.Outcome.String()),
			slog.Int("tables", result.TablesFound),
			slog.Duration("duration", result.Duration()),
		)
	}

	return metricsServer, pipeline.Report(result, err)
}

// serveMetrics binds addr before returning so a bad address is reported
// up front, then serves the registry on /metrics in the background.
func serveMetrics(addr string, registry *prometheus.Registry) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", srv.Addr))
	return srv, nil
}

func newLogger(out io.Writer, verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := out.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
