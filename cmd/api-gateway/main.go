package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/uw-schedule-builder/internal/handler"
	"github.com/noah-isme/uw-schedule-builder/internal/repository"
	"github.com/noah-isme/uw-schedule-builder/internal/scheduler"
	"github.com/noah-isme/uw-schedule-builder/internal/service"
	"github.com/noah-isme/uw-schedule-builder/pkg/cache"
	"github.com/noah-isme/uw-schedule-builder/pkg/config"
	"github.com/noah-isme/uw-schedule-builder/pkg/database"
	"github.com/noah-isme/uw-schedule-builder/pkg/jobs"
	"github.com/noah-isme/uw-schedule-builder/pkg/logger"
	"github.com/noah-isme/uw-schedule-builder/pkg/uwaterloo"
)

// @title UW Schedule Builder API
// @version 1.0.0
// @description Builds every conflict-free timetable for a set of University of Waterloo courses.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.UWAPI.APIKey == "" {
		logr.Warn("UW_API_KEY is empty; class schedule requests will be rejected upstream")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	limiter := uwaterloo.NewLimiter(cfg.UWAPI.RatePerSecond, cfg.UWAPI.Burst)
	client := uwaterloo.NewClient(uwaterloo.ClientConfig{
		BaseURL:  cfg.UWAPI.BaseURL,
		APIKey:   cfg.UWAPI.APIKey,
		Timeout:  cfg.UWAPI.Timeout,
		Limiter:  limiter,
		Observer: metrics,
	})
	scraper := uwaterloo.NewExamScraper(uwaterloo.ExamScraperConfig{
		URLTemplate: cfg.UWAPI.ExamURLTemplate,
		Timeout:     cfg.UWAPI.Timeout,
		Limiter:     limiter,
		Observer:    metrics,
	})
	resolver := scheduler.NewExamDateResolver(scraper, scheduler.ParseDateOrder(cfg.UWAPI.ExamDateOrder))
	examPolicy := scheduler.ParseExamPolicy(cfg.Scheduler.ExamPolicy)
	grouper := scheduler.NewGrouper(resolver, examPolicy, logr.Named("grouper"))

	deps := service.ScheduleBuilderDeps{Exams: scraper, Metrics: metrics}

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, course cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(rdb, logr)
			defer cacheRepo.Close() //nolint:errcheck
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)
			deps.Cache = cacheSvc
			checks["redis"] = cacheSvc.Ping
		}
	}

	historySvc := service.NewHistoryService(nil, metrics, logr, service.HistoryConfig{Enabled: false})
	if cfg.History.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Fatal("failed to prepare schema", zap.Error(err))
		}
		checks["database"] = db.PingContext

		historySvc = service.NewHistoryService(repository.NewScheduleRequestRepository(db), metrics, logr, service.HistoryConfig{
			Enabled:      true,
			DefaultLimit: cfg.History.DefaultLimit,
		})
		queue := jobs.NewQueue("history", historySvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.History.WorkerConcurrency,
			MaxRetries: cfg.History.WorkerRetries,
			Logger:     logr,
		})
		// the queue outlives ctx so buffered entries drain after a shutdown signal
		queue.Start(context.Background())
		defer queue.Stop()
		historySvc.UseQueue(queue)
	}
	deps.History = historySvc

	builder := service.NewScheduleBuilderService(client, grouper, deps, nil, logr, service.ScheduleBuilderConfig{
		FetchConcurrency: cfg.Scheduler.FetchConcurrency,
		SearchTimeout:    cfg.Scheduler.SearchTimeout,
		MaxExploredNodes: cfg.Scheduler.MaxExploredNodes,
		MaxResults:       cfg.Scheduler.MaxResults,
		ExamPolicy:       examPolicy,
		CacheTTL:         cfg.Cache.TTL,
		ExportsEnabled:   cfg.Exports.Enabled,
	})

	var invalidator courseCacheInvalidator
	if cacheSvc != nil {
		invalidator = cacheSvc
	}
	router := newRouter(cfg, logr, routes{
		builder: handler.NewScheduleBuilderHandler(builder, invalidator),
		history: handler.NewHistoryHandler(historySvc),
		metrics: handler.NewMetricsHandler(metrics, checks),
		observe: metrics,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Warn("http shutdown error", zap.Error(err))
		}
	}()

	logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env, "history", cfg.History.Enabled, "cache", cacheSvc != nil)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Error("server failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
