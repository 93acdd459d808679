package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"perfoptima-api/pkg/database"
	"perfoptima-api/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTarget 目標売上の既定値
const DefaultTarget = 15000.0

var (
	// ErrInvalidScenario 未知のシナリオ名
	ErrInvalidScenario = errors.New("invalid scenario type")
	// ErrNoData データセットが空
	ErrNoData = errors.New("no sales data available")
	// ErrInvalidOverride 手動入力の値が不正
	ErrInvalidOverride = errors.New("invalid override")
	// ErrNoSnapshot 保存済みの予測がない
	ErrNoSnapshot = errors.New("no forecast snapshot available")
)

// DatasetConfig データセットサービスの設定
type DatasetConfig struct {
	Months        int     // シミュレーションで生成する月数
	DefaultTarget float64 // 目標未設定時の値
}

// DatasetService 現在のデータセットと目標値を管理し、予測を実行する
// 更新はすべてmuで直列化され、予測は常に完全なデータセットを読む。
type DatasetService struct {
	mu         sync.RWMutex
	store      *database.SalesStore
	simulator  *ScenarioSimulator
	forecaster *SalesForecaster
	cfg        DatasetConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewDatasetService 新しいDatasetServiceを作成
func NewDatasetService(store *database.SalesStore, simulator *ScenarioSimulator, forecaster *SalesForecaster, cfg DatasetConfig, log zerolog.Logger) *DatasetService {
	if cfg.Months <= 0 {
		cfg.Months = DefaultSimulationMonths
	}
	if cfg.DefaultTarget <= 0 {
		cfg.DefaultTarget = DefaultTarget
	}
	return &DatasetService{
		store:      store,
		simulator:  simulator,
		forecaster: forecaster,
		cfg:        cfg,
		log:        log.With().Str("component", "dataset").Logger(),
		now:        time.Now,
	}
}

// Seed データセットが空ならgrowthシナリオで初期化する
func (s *DatasetService) Seed(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.CountRecords(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.log.Info().Int("records", n).Msg("Existing dataset loaded")
		return false, nil
	}

	if _, err := s.replaceWithScenario(ctx, models.ScenarioGrowth); err != nil {
		return false, err
	}
	return true, nil
}

// SwitchScenario 指定シナリオのデータを生成して現在のデータセットを置き換える
// 目標値は維持する。
func (s *DatasetService) SwitchScenario(ctx context.Context, scenario models.ScenarioType) (*models.ScenarioResponse, error) {
	if !scenario.IsSimulated() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidScenario, scenario)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.replaceWithScenario(ctx, scenario)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reset growthシナリオと既定の目標値に戻す
func (s *DatasetService) Reset(ctx context.Context) (*models.ScenarioResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.replaceWithScenario(ctx, models.ScenarioGrowth)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetFloatState(ctx, database.StateTarget, s.cfg.DefaultTarget); err != nil {
		return nil, err
	}
	s.log.Warn().Float64("target", s.cfg.DefaultTarget).Msg("Dataset reset to defaults")
	return res, nil
}

func (s *DatasetService) replaceWithScenario(ctx context.Context, scenario models.ScenarioType) (*models.ScenarioResponse, error) {
	records := s.simulator.Generate(scenario, s.cfg.Months)
	datasetID, err := s.replace(ctx, records, scenario)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("scenario", string(scenario)).
		Str("dataset_id", datasetID).
		Int("records", len(records)).
		Msg("Scenario dataset generated")

	return &models.ScenarioResponse{
		Message:    fmt.Sprintf("Scenario switched to: %s", strings.ToUpper(string(scenario))),
		DataPoints: len(records),
		DatasetID:  datasetID,
	}, nil
}

// replace データセットを置き換え、シナリオ名と新しいデータセットIDを保存する
func (s *DatasetService) replace(ctx context.Context, records []models.SalesRecord, scenario models.ScenarioType) (string, error) {
	datasetID := uuid.NewString()
	err := s.store.ReplaceRecords(ctx, records, map[string]string{
		database.StateCurrentScenario: string(scenario),
		database.StateDatasetID:       datasetID,
	})
	if err != nil {
		return "", err
	}
	return datasetID, nil
}

// ApplyOverride 最新月の売上と目標値を手動で上書きする
func (s *DatasetService) ApplyOverride(ctx context.Context, in models.ManualOverrideInput) error {
	if math.IsNaN(in.CurrentRevenue) || math.IsInf(in.CurrentRevenue, 0) || in.CurrentRevenue < 0 {
		return fmt.Errorf("%w: current_revenue must be a non-negative number", ErrInvalidOverride)
	}
	if math.IsNaN(in.Target) || math.IsInf(in.Target, 0) || in.Target <= 0 {
		return fmt.Errorf("%w: target must be greater than zero", ErrInvalidOverride)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// データが空でも目標値だけは保存する
	updated, err := s.store.UpdateLatestRevenue(ctx, in.CurrentRevenue, UnitsForRevenue(in.CurrentRevenue))
	if err != nil && !errors.Is(err, database.ErrNoRecords) {
		return err
	}
	if err := s.store.SetFloatState(ctx, database.StateTarget, in.Target); err != nil {
		return err
	}

	event := s.log.Info().Float64("target", in.Target).Float64("current_revenue", in.CurrentRevenue)
	if updated != nil {
		event = event.Str("date", updated.Date.String())
	}
	event.Msg("Manual override applied")
	return nil
}

// ImportRecords アップロードされたデータでデータセットを置き換える（シナリオは custom）
func (s *DatasetService) ImportRecords(ctx context.Context, records []models.SalesRecord) (*models.UploadResponse, error) {
	if len(records) == 0 {
		return nil, ErrNoData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	datasetID, err := s.replace(ctx, records, models.ScenarioCustom)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("dataset_id", datasetID).
		Int("records", len(records)).
		Msg("Custom dataset imported")

	return &models.UploadResponse{
		Message:          "Data uploaded successfully",
		RecordsProcessed: len(records),
		DatasetID:        datasetID,
	}, nil
}

// History 現在のデータセット（日付順）
func (s *DatasetService) History(ctx context.Context) ([]models.SalesRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.ListRecords(ctx)
}

// CurrentScenario 現在のシナリオ名（未設定なら空文字）
func (s *DatasetService) CurrentScenario(ctx context.Context) (models.ScenarioType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, _, err := s.store.GetState(ctx, database.StateCurrentScenario)
	return models.ScenarioType(v), err
}

// Status 最新月の売上と目標とのギャップ（%）
func (s *DatasetService) Status(ctx context.Context) (*models.StatusResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}
	target, err := s.store.GetFloatState(ctx, database.StateTarget, s.cfg.DefaultTarget)
	if err != nil {
		return nil, err
	}

	latest := records[len(records)-1].Revenue
	return &models.StatusResponse{
		CurrentMonthRevenue: latest,
		Target:              target,
		PerformanceGap:      roundTo((latest-target)/target*100, 2),
	}, nil
}

// Predict 現在のデータセットに対して予測を実行
func (s *DatasetService) Predict(ctx context.Context, modelType models.ModelType) (*models.PredictionResponse, error) {
	s.mu.RLock()
	records, err := s.store.ListRecords(ctx)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.forecaster.Predict(records, modelType)
}

// Snapshot 予測を実行し、結果を last_forecast として保存する
func (s *DatasetService) Snapshot(ctx context.Context, modelType models.ModelType) (*models.ForecastSnapshot, error) {
	s.mu.RLock()
	records, err := s.store.ListRecords(ctx)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	scenario, _, err := s.store.GetState(ctx, database.StateCurrentScenario)
	if err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	datasetID, _, err := s.store.GetState(ctx, database.StateDatasetID)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	prediction, err := s.forecaster.Predict(records, modelType)
	if err != nil {
		return nil, err
	}

	snapshot := &models.ForecastSnapshot{
		DatasetID:   datasetID,
		Scenario:    models.ScenarioType(scenario),
		Model:       s.forecaster.Model(modelType).Name(),
		DataPoints:  len(records),
		GeneratedAt: s.now().UTC(),
		Prediction:  *prediction,
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode forecast snapshot: %w", err)
	}
	if err := s.store.SetState(ctx, database.StateLastForecast, string(encoded)); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// LatestSnapshot 最後に保存された予測
func (s *DatasetService) LatestSnapshot(ctx context.Context) (*models.ForecastSnapshot, error) {
	v, ok, err := s.store.GetState(ctx, database.StateLastForecast)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSnapshot
	}
	var snapshot models.ForecastSnapshot
	if err := json.Unmarshal([]byte(v), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode forecast snapshot: %w", err)
	}
	return &snapshot, nil
}
