package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/analytics/ga4"
	"github.com/productpulse/pulse-api/internal/config"
	"github.com/productpulse/pulse-api/internal/export"
	"github.com/productpulse/pulse-api/internal/ingestion"
	"github.com/productpulse/pulse-api/internal/insights"
	"github.com/productpulse/pulse-api/internal/jira"
	"github.com/productpulse/pulse-api/internal/metrics"
	"github.com/productpulse/pulse-api/internal/middleware"
	"github.com/productpulse/pulse-api/internal/repository"
	"github.com/productpulse/pulse-api/internal/workspace"
	"github.com/productpulse/pulse-api/pkg/retry"
)

// Deps carries the wired services and repositories the routes run on.
// Insights, Release, and Analytics are optional; their routes return 503
// when the backing integration is not configured.
type Deps struct {
	Ingestion  *ingestion.Handler
	DictRepo   repository.KPIDictionaryRepository
	FactRepo   repository.KPIFactRepository
	Thresholds repository.ThresholdRepository
	Workspaces *workspace.Service
	Export     *export.Service
	Insights   *insights.Service
	Release    *jira.ReleaseService
	Analytics  *ga4.Syncer
	RetryCfg   retry.Config
	Logger     *zap.Logger
}

// Server is the dashboard's HTTP API.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	router *chi.Mux
	server *http.Server
	logger *zap.Logger
}

func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: deps.Logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.Recover(s.logger))
	s.router.Use(chimiddleware.Timeout(60 * time.Second))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	s.router.Use(corsHandler.Handler)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/ingestion", func(r chi.Router) {
			r.Post("/preview", s.deps.Ingestion.Preview)
			r.Post("/upload", s.deps.Ingestion.Upload)
			r.Post("/definitions", s.deps.Ingestion.Definitions)
			r.Get("/template", s.deps.Ingestion.Template)
			r.Get("/logs", s.deps.Ingestion.Logs)
		})

		r.Get("/dictionary", s.handleListDictionary)
		r.Post("/dictionary", s.handleUpsertDefinition)

		r.Get("/tenants", s.handleListTenants)
		r.Get("/tenants/{tenantID}/facts", s.handleListFacts)
		r.Get("/tenants/{tenantID}/thresholds", s.handleListThresholds)
		r.Put("/tenants/{tenantID}/thresholds", s.handleSaveThresholds)
		r.Get("/tenants/{tenantID}/export", s.handleExportFacts)
		r.Post("/tenants/{tenantID}/analytics/sync", s.handleAnalyticsSync)

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", s.handleListWorkspaces)
			r.Post("/", s.handleCreateWorkspace)
			r.Get("/{id}", s.handleGetWorkspace)
			r.Put("/{id}", s.handleUpdateWorkspace)
			r.Delete("/{id}", s.handleDeleteWorkspace)
		})

		r.Route("/insights", func(r chi.Router) {
			r.Post("/sentiment", s.handleSentimentAudit)
			r.Post("/seo-audit", s.handleSEOAudit)
			r.Post("/chart-config", s.handleChartConfig)
			r.Post("/prioritize", s.handlePrioritize)
		})

		r.Route("/releases", func(r chi.Router) {
			r.Get("/", s.handleListReleaseReports)
			r.Post("/", s.handleBuildReleaseReport)
		})
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("http server listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for handler tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
