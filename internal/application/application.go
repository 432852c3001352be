// Package application assembles the export services from configuration. The
// HTTP server and the exportctl command share it so both produce identical
// artifacts and history.
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tabexport/internal/config"
	"github.com/JonMunkholm/tabexport/internal/download"
	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/history"
	"github.com/JonMunkholm/tabexport/internal/metrics"
	"github.com/JonMunkholm/tabexport/internal/report"
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Registry  *export.CodecRegistry
	Downloads *download.Manager
	Exporter  *export.Exporter
	History   history.Store
	Recorder  *history.Recorder
	Metrics   *metrics.Collector
	Retention *history.Retention

	// Reports is nil unless a report service is configured.
	Reports *report.Orchestrator

	// Archive is nil unless an object store is configured.
	Archive download.Sink

	pool   *pgxpool.Pool
	memory *history.MemoryStore
}

// New wires every service described by cfg. Connections opened here are
// released by Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	a.Registry = export.NewCodecRegistry(export.DefaultLoaders()).WithLogger(logger)
	a.Downloads = download.NewManager(download.NewBlobStore(), logger)

	if err := a.openHistory(ctx); err != nil {
		return nil, err
	}
	a.Recorder = history.NewRecorder(a.History, logger)
	a.Retention = history.NewRetention(a.History, history.RetentionConfig{
		RetentionDays: cfg.History.RetentionDays,
		CheckInterval: cfg.History.CheckInterval,
	}, logger)

	a.Metrics = metrics.NewCollector(nil)
	a.Metrics.WatchCodecs(a.Registry)
	a.Metrics.WatchDownloads(a.Downloads.Outstanding)

	a.Exporter = export.NewExporter(export.Config{
		Registry:     a.Registry,
		Downloads:    a.Downloads,
		Logger:       logger,
		ColumnWidth:  cfg.Export.ColumnWidth,
		MaxLogRows:   cfg.Export.MaxLogRows,
		DefaultTitle: cfg.Export.DefaultTitle,
		Observers:    []export.Observer{a.Recorder, a.Metrics},
	})

	if cfg.Remote.Enabled() {
		catalog, err := report.LoadCatalogFile(cfg.Remote.Catalog)
		if err != nil {
			a.Close()
			return nil, err
		}
		client := report.NewHTTPClient(cfg.Remote.URL, cfg.Remote.Token, cfg.Remote.Timeout)
		a.Reports = report.NewOrchestrator(client, a.Exporter, catalog, logger)
		a.Reports.AddObserver(a.Recorder)
		a.Reports.AddObserver(a.Metrics)
		logger.Info("report service configured", "url", cfg.Remote.URL, "reports", len(catalog.All()))
	}

	if cfg.Storage.ObjectStoreEnabled() {
		sink, err := ObjectStore(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Archive = sink
		logger.Info("export archive configured", "bucket", cfg.Storage.S3Bucket, "prefix", cfg.Storage.S3Prefix)
	}

	return a, nil
}

func (a *App) openHistory(ctx context.Context) error {
	cfg := a.Config
	if !cfg.Database.Enabled() {
		a.memory = history.NewMemoryStore(cfg.History.MemoryCapacity)
		a.History = a.memory
		a.Logger.Info("export history kept in memory", "capacity", cfg.History.MemoryCapacity)
		return nil
	}

	pool, err := history.Connect(ctx, history.PoolConfig{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}

	store := history.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return err
	}
	a.pool = pool
	a.History = store
	a.Logger.Info("connected to history database")
	return nil
}

// ObjectStore builds the S3-compatible sink described by cfg.
func ObjectStore(cfg config.StorageConfig) (download.ObjectStoreSink, error) {
	putter, err := download.NewMinioPutter(download.MinioConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return download.ObjectStoreSink{}, fmt.Errorf("object store: %w", err)
	}
	return download.ObjectStoreSink{Client: putter, Bucket: cfg.S3Bucket, Prefix: cfg.S3Prefix}, nil
}

// Close releases the history backend.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	if a.memory != nil {
		a.memory.Close()
	}
}
