package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "perfoptima-api/configs"
	"perfoptima-api/pkg/database"
	"perfoptima-api/pkg/handlers"
	"perfoptima-api/pkg/logger"
	"perfoptima-api/pkg/models"
	"perfoptima-api/pkg/scheduler"
	"perfoptima-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	envErr := godotenv.Load()

	// 設定の読み込み
	cfg := config.LoadConfig()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)
	if envErr != nil {
		log.Debug().Err(envErr).Msg(".env file not loaded")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// データベース
	db, err := database.New(database.Config{Path: cfg.DatabasePath, Name: "perfoptima"})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open database")
	}
	defer db.Close()
	log.Info().Str("path", db.Path()).Msg("Database ready")

	// サービスの初期化
	datasets := services.NewDatasetService(
		database.NewSalesStore(db),
		services.NewScenarioSimulator(nil, nil),
		services.NewSalesForecaster(),
		services.DatasetConfig{Months: cfg.SimulationMonths, DefaultTarget: cfg.DefaultTarget},
		log,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	seeded, err := datasets.Seed(ctx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to seed dataset")
	}
	if seeded {
		log.Info().Msg("Seeded dataset with growth scenario")
	}

	// 定期予測ジョブ
	sched := scheduler.New(log)
	if cfg.ForecastCron != "" {
		job := services.NewForecastJob(datasets, models.ModelType(cfg.ForecastModel), log)
		if err := sched.AddJob(cfg.ForecastCron, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register forecast job")
		}
		if err := sched.RunNow(job); err != nil {
			log.Warn().Err(err).Msg("Initial forecast snapshot failed")
		}
	}
	sched.Start()
	defer sched.Stop()

	r := setupRouter(&app{
		cfg:         cfg,
		datasets:    datasets,
		monitoring:  services.NewMonitoringService(log, "/api/admin", "/api/monitoring"),
		maintenance: &handlers.Maintenance{},
		db:          db,
		jobs:        sched,
		log:         log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("environment", cfg.Environment).Msg("Starting PerfOptima API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}
