package main

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/uw-schedule-builder/api/swagger"
	"github.com/noah-isme/uw-schedule-builder/internal/handler"
	"github.com/noah-isme/uw-schedule-builder/internal/middleware"
	"github.com/noah-isme/uw-schedule-builder/pkg/config"
	"github.com/noah-isme/uw-schedule-builder/pkg/logger"
	corsmiddleware "github.com/noah-isme/uw-schedule-builder/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uw-schedule-builder/pkg/middleware/requestid"
)

type courseCacheInvalidator interface {
	InvalidateTerm(ctx context.Context, termCode string) (int, error)
}

type routes struct {
	builder *handler.ScheduleBuilderHandler
	history *handler.HistoryHandler
	metrics *handler.MetricsHandler
	observe middleware.HTTPObserver
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.observe))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	r.GET("/metrics/summary", h.metrics.Summary)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			PerMinute: cfg.RateLimit.PerMinute,
			Burst:     cfg.RateLimit.Burst,
		}, logr))
	}

	schedules := api.Group("/schedules")
	schedules.POST("/generate", h.builder.Generate)
	schedules.POST("/export", h.builder.Export)

	courses := api.Group("/courses")
	courses.DELETE("/cache", h.builder.InvalidateCache)
	courses.GET("/:term/:subject/:catalog", h.builder.Course)
	courses.GET("/:term/:subject/:catalog/raw", h.builder.RawCourse)
	courses.GET("/:term/:subject/:catalog/exam", h.builder.Exam)

	history := api.Group("/history")
	history.GET("", h.history.List)
	history.GET("/latest", h.history.Latest)
	history.GET("/export", h.history.Export)
	history.DELETE("", h.history.Clear)

	return r
}
