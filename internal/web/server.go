package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/tabexport/internal/config"
	"github.com/JonMunkholm/tabexport/internal/download"
	"github.com/JonMunkholm/tabexport/internal/export"
	"github.com/JonMunkholm/tabexport/internal/history"
	"github.com/JonMunkholm/tabexport/internal/metrics"
	"github.com/JonMunkholm/tabexport/internal/report"
	mw "github.com/JonMunkholm/tabexport/internal/web/middleware"
)

// Dependencies are the services the HTTP layer exposes. Exporter and
// Downloads are required; the rest are optional.
type Dependencies struct {
	Exporter  *export.Exporter
	Registry  *export.CodecRegistry
	Downloads *download.Manager

	// Reports is nil when no report service is configured.
	Reports *report.Orchestrator

	History history.Store
	Metrics *metrics.Collector

	// Archive receives a copy of every export served over HTTP.
	Archive download.Sink

	Logger *slog.Logger
}

// Server is the HTTP server of the export service.
type Server struct {
	cfg       *config.Config
	exporter  *export.Exporter
	registry  *export.CodecRegistry
	downloads *download.Manager
	reports   *report.Orchestrator
	history   history.Store
	metrics   *metrics.Collector
	archive   download.Sink
	logger    *slog.Logger

	limiter      *ExportLimiter
	rateLimiters []*rateLimiter

	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		exporter:  deps.Exporter,
		registry:  deps.Registry,
		downloads: deps.Downloads,
		reports:   deps.Reports,
		history:   deps.History,
		metrics:   deps.Metrics,
		archive:   deps.Archive,
		logger:    logger,
		limiter:   NewExportLimiter(cfg.Export.MaxConcurrent, cfg.Export.MaxWait),
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

func (s *Server) newRateLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	s.rateLimiters = append(s.rateLimiters, rl)
	return rl
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		r.Use(requestMetadata)

		r.Get("/formats", s.handleFormats)
		r.Get("/reports", s.handleListReports)
		r.Get("/exports/history", s.handleHistory)

		// Rendering routes get their own, stricter budget.
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled && s.cfg.Rate.ExportLimit > 0 {
				r.Use(s.newRateLimiter(s.cfg.Rate.ExportLimit).middleware)
			}
			r.Post("/export/composite", s.handleExportComposite)
			r.Post("/export/{format}", s.handleExport)
			r.Get("/reports/{reportType}/export", s.handleExportReport)
		})
	})
}

type healthResponse struct {
	Status               string            `json:"status"`
	Codecs               map[string]string `json:"codecs"`
	Exports              LimiterStatus     `json:"exports"`
	DownloadsOutstanding int               `json:"downloadsOutstanding"`
	Reports              bool              `json:"reports"`
}

// handleHealth handles GET /healthz. A failed codec degrades output but does
// not make the service unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Codecs:  s.codecStates(),
		Exports: s.limiter.Status(),
		Reports: s.reports != nil,
	}
	if s.downloads != nil {
		resp.DownloadsOutstanding = s.downloads.Outstanding()
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, waits for in-flight exports to finish
// and stops background rate limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	defer func() {
		for _, rl := range s.rateLimiters {
			rl.Stop()
		}
	}()

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		s.logger.Warn("exports still running at shutdown", "active", s.limiter.ActiveCount())
		return err
	}
	return nil
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Limiter returns the export limiter.
func (s *Server) Limiter() *ExportLimiter {
	return s.limiter
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		// Exported HTML documents carry their own inline styles.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
