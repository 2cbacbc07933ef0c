package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pidgate/internal/platform/config"
	"pidgate/internal/platform/httpserver"
	"pidgate/internal/platform/logger"
	httptransport "pidgate/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("pidgate stopped with error", "error", err)
		os.Exit(1)
	}
}

// run wires the components and blocks until ctx is cancelled or a background
// loop fails.
func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	router := httptransport.NewRouter(app.deps)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return background(app.registry.Run(gctx)) })
	g.Go(func() error { return background(app.revocations.Run(gctx)) })
	if app.auditWorker != nil {
		g.Go(func() error { return background(app.auditWorker.Run(gctx)) })
	}
	g.Go(func() error {
		log.Info("starting pidgate", "addr", cfg.Addr, "snapshot_backend", cfg.SnapshotBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.sessions.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("pidgate stopped")
		return nil
	})
	return g.Wait()
}

// background treats cancellation as a clean exit for long-running loops.
func background(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
