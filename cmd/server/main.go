package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/productpulse/pulse-api/internal/analytics/ga4"
	"github.com/productpulse/pulse-api/internal/cache/redis"
	"github.com/productpulse/pulse-api/internal/config"
	"github.com/productpulse/pulse-api/internal/db"
	"github.com/productpulse/pulse-api/internal/export"
	"github.com/productpulse/pulse-api/internal/ingestion"
	"github.com/productpulse/pulse-api/internal/insights"
	"github.com/productpulse/pulse-api/internal/jira"
	"github.com/productpulse/pulse-api/internal/metrics"
	"github.com/productpulse/pulse-api/internal/repository"
	"github.com/productpulse/pulse-api/internal/server"
	"github.com/productpulse/pulse-api/internal/workspace"
	"github.com/productpulse/pulse-api/pkg/logger"
	"github.com/productpulse/pulse-api/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zl := logger.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.NewConnection(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath, cfg.Database.URL()); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	metrics.Register()

	retryCfg := retry.Config{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		Timeout:        time.Duration(cfg.Retry.TimeoutMs) * time.Millisecond,
		InitialBackoff: time.Duration(cfg.Retry.BackoffMs) * time.Millisecond,
		Logger:         zl,
	}

	dictRepo := repository.NewKPIDictionaryRepository(conn.Pool)
	factRepo := repository.NewKPIFactRepository(conn.Pool)
	logRepo := repository.NewUploadLogRepository(conn.Pool)
	headerRepo := repository.NewTemplateHeaderRepository(conn.Pool)
	thresholdRepo := repository.NewThresholdRepository(conn.Pool)
	workspaceRepo := repository.NewWorkspaceRepository(conn.Pool)
	reportRepo := repository.NewReleaseReportRepository(conn.Pool)

	var cacheClient *redis.Client
	if cfg.Redis.Enabled {
		cacheClient, err = redis.NewClient(
			cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			// Cache is an accelerator, not a dependency.
			logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
			cacheClient = nil
		} else {
			defer cacheClient.Close()
		}
	}

	var workspaceCache workspace.Cache
	if cacheClient != nil {
		workspaceCache = cacheClient
	}
	workspaceSvc := workspace.NewService(workspaceRepo, workspaceCache, zl)

	ingestionSvc := ingestion.NewService(dictRepo, factRepo, logRepo, headerRepo,
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithRetryConfig(retryCfg),
		ingestion.WithLogger(zl),
	)

	var insightSvc *insights.Service
	if cfg.AI.APIKey != "" {
		client := insights.NewClient(
			cfg.AI.APIKey, cfg.AI.Model, cfg.AI.Temperature, cfg.AI.MaxTokens,
			time.Duration(cfg.AI.TimeoutSec)*time.Second, zl,
		)
		insightSvc = insights.NewService(client, zl)
	}

	var releaseSvc *jira.ReleaseService
	if cfg.Jira.BaseURL != "" {
		jiraClient := jira.NewClient(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken, zl)
		var narrator jira.Narrator
		if insightSvc != nil {
			narrator = insightSvc
		}
		releaseSvc = jira.NewReleaseService(jiraClient, reportRepo, narrator, zl)
	}

	var analyticsSvc *ga4.Syncer
	if cfg.GA4.AccessToken != "" && cfg.GA4.PropertyID != "" {
		ga4Client := ga4.NewClient(cfg.GA4.BaseURL, cfg.GA4.AccessToken, cfg.GA4.PropertyID, zl)
		analyticsSvc = ga4.NewSyncer(ga4Client, factRepo, cfg.GA4.Metrics, zl)
	}

	srv := server.New(cfg.Server, server.Deps{
		Ingestion:  ingestion.NewHTTPHandler(ingestionSvc),
		DictRepo:   dictRepo,
		FactRepo:   factRepo,
		Thresholds: thresholdRepo,
		Workspaces: workspaceSvc,
		Export:     export.NewService(factRepo, dictRepo, zl),
		Insights:   insightSvc,
		Release:    releaseSvc,
		Analytics:  analyticsSvc,
		RetryCfg:   retryCfg,
		Logger:     zl,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
