package services

import (
	"context"
	"errors"
	"time"

	"perfoptima-api/pkg/models"

	"github.com/rs/zerolog"
)

// ForecastJob 現在のデータセットの予測を定期的に保存するジョブ
type ForecastJob struct {
	datasets *DatasetService
	model    models.ModelType
	timeout  time.Duration
	log      zerolog.Logger
}

// NewForecastJob 新しいForecastJobを作成
func NewForecastJob(datasets *DatasetService, model models.ModelType, log zerolog.Logger) *ForecastJob {
	return &ForecastJob{
		datasets: datasets,
		model:    model,
		timeout:  30 * time.Second,
		log:      log.With().Str("job", "forecast_snapshot").Logger(),
	}
}

// Name ジョブ名
func (j *ForecastJob) Name() string {
	return "forecast_snapshot"
}

// Run 予測を実行して保存する。データが空の場合は何もしない。
func (j *ForecastJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	snapshot, err := j.datasets.Snapshot(ctx, j.model)
	if errors.Is(err, ErrNoData) {
		j.log.Debug().Msg("No data, snapshot skipped")
		return nil
	}
	if err != nil {
		return err
	}

	event := j.log.Info().
		Str("dataset_id", snapshot.DatasetID).
		Str("model", string(snapshot.Model)).
		Float64("forecast", snapshot.Prediction.NextMonthRevenueForecast).
		Float64("confidence", snapshot.Prediction.ConfidenceScore).
		Str("trend", string(snapshot.Prediction.Trend))
	if snapshot.Prediction.Alert != nil {
		event = event.Str("alert", *snapshot.Prediction.Alert)
	}
	event.Msg("Forecast snapshot saved")
	return nil
}
