// Package main runs the mediacompose HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/maauso/mediacompose/internal/bootstrap"
	"github.com/maauso/mediacompose/internal/config"
	"github.com/maauso/mediacompose/internal/server"
)

const shutdownGrace = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "mediacompose: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting mediacompose",
		slog.Int("port", cfg.Port),
		slog.String("encoder", cfg.Encoder),
		slog.Int("max_concurrent_jobs", cfg.MaxConcurrentJobs),
		slog.Duration("job_timeout", cfg.JobTimeout),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)
	logger.Debug("effective configuration", slog.String("config", cfg.String()))

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	handlers := server.NewHandlers(deps.Jobs, server.Pipelines{
		Prober:       deps.Prober,
		Compositor:   deps.Compositor,
		Concatenator: deps.Concatenator,
		Mixer:        deps.Mixer,
	}, logger)

	// Requests only submit jobs; encodes never run inside a handler.
	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:           server.NewRouter(handlers, logger, server.DefaultConfig()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := serve(srv, logger)
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		logger.Info("shutdown requested", slog.Any("cause", context.Cause(ctx)))
	}

	return shutdown(srv, deps, logger)
}

// serve starts srv in the background. The channel yields a value only when the
// listener fails for a reason other than Shutdown.
func serve(srv *http.Server, logger *slog.Logger) <-chan error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("listen: %w", err)
		}
	}()
	return errc
}

// shutdown drains in-flight requests first, then cancels running jobs so their
// ffmpeg processes exit and partial outputs are removed.
func shutdown(srv *http.Server, deps *bootstrap.Dependencies, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop http server: %w", err)
	}
	if err := deps.Jobs.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop jobs: %w", err)
	}
	logger.Info("stopped")
	return nil
}
