package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/jsonview/internal/config"
	"github.com/JonMunkholm/jsonview/internal/core"
	"github.com/JonMunkholm/jsonview/internal/logging"
	"github.com/JonMunkholm/jsonview/internal/metrics"
	"github.com/JonMunkholm/jsonview/internal/watch"
	"github.com/JonMunkholm/jsonview/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"max_file_size", humanize.IBytes(uint64(cfg.Ingest.MaxFileSize)),
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"max_sessions", cfg.Session.MaxSessions,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"watch", cfg.Session.Watch,
	)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	service := core.NewService(cfg.ServiceOptions(), m, slog.Default())
	server := web.NewServer(cfg, service, m)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Session.Watch {
		watcher, err := watch.New(cfg.Session.WatchDebounce, watch.ReloadSessions(gctx, service, slog.Default()), slog.Default())
		if err != nil {
			return err
		}
		service.SetHooks(watcher.Hooks())
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		service.StartJanitor(gctx, core.JanitorConfig{
			Interval:    cfg.Session.JanitorInterval,
			IdleTimeout: cfg.Session.IdleTimeout,
		})
		return nil
	})

	g.Go(func() error {
		if err := server.Start(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running passes finish within the timeout.
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for ingests to complete", "active", status.Active)
			if err := service.WaitForIngest(shutdownCtx); err != nil {
				slog.Warn("ingests did not complete in time", "error", err)
			} else {
				slog.Info("all ingests completed")
			}
		}

		// Closing the documents ends their event streams, so the HTTP
		// shutdown is not held up by them.
		service.CloseAll()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
