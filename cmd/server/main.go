// Command server runs the export HTTP API.
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

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tabexport/internal/application"
	"github.com/JonMunkholm/tabexport/internal/config"
	"github.com/JonMunkholm/tabexport/internal/logging"
	"github.com/JonMunkholm/tabexport/internal/web"
)

func main() {
	// .env values win over the inherited environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"history_database", cfg.Database.Enabled(),
		"report_service", cfg.Remote.Enabled(),
		"object_store", cfg.Storage.ObjectStoreEnabled(),
		"export_max_concurrent", cfg.Export.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	logger.Debug("effective configuration", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	defer app.Close()

	server := web.NewServer(cfg, web.Dependencies{
		Exporter:  app.Exporter,
		Registry:  app.Registry,
		Downloads: app.Downloads,
		Reports:   app.Reports,
		History:   app.History,
		Metrics:   app.Metrics,
		Archive:   app.Archive,
		Logger:    logger,
	})

	// Retention stops with ctx.
	go app.Retention.Start(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "active_exports", server.Limiter().ActiveCount())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
