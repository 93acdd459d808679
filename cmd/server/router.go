package main

import (
	config "perfoptima-api/configs"
	"perfoptima-api/pkg/handlers"
	"perfoptima-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// app ルーターが依存するサービス群
type app struct {
	cfg         *config.Config
	datasets    *services.DatasetService
	monitoring  *services.MonitoringService
	maintenance *handlers.Maintenance
	db          handlers.HealthChecker
	jobs        handlers.JobStatusProvider
	log         zerolog.Logger
}

// setupRouter ミドルウェアとルートを登録したGinルーターを作成
func setupRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	salesHandler := handlers.NewSalesHandler(a.datasets)
	adminHandler := handlers.NewAdminHandler(a.cfg, a.maintenance, a.datasets, a.db, a.jobs)
	monitoringHandler := handlers.NewMonitoringHandler(a.monitoring)

	// ミドルウェアの登録
	r.Use(a.monitoring.LoggingMiddleware())
	r.Use(cors.Default())
	r.Use(a.maintenance.Middleware())

	r.GET("/", salesHandler.Root)
	r.GET("/health", adminHandler.HealthCheck)

	api := r.Group("/api")
	api.Use(handlers.APIKeyMiddleware(a.cfg.APIKey))
	{
		api.POST("/scenario/:scenario_type", salesHandler.SwitchScenario)
		api.POST("/override", salesHandler.Override)
		api.GET("/history", salesHandler.History)
		api.GET("/current-status", salesHandler.CurrentStatus)
		api.GET("/predict", salesHandler.Predict)
		api.POST("/upload", salesHandler.Upload)
		api.GET("/forecast/latest", salesHandler.LatestForecast)

		// 管理者向けAPI
		admin := api.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
			admin.POST("/reset", adminHandler.ResetDataset)
		}

		// モニタリングAPI
		monitoring := api.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}
	}

	a.log.Debug().Int("routes", len(r.Routes())).Msg("Routes registered")
	return r
}
