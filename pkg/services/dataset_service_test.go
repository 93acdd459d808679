package services

import (
	"context"
	"math"
	"sync"
	"testing"

	"perfoptima-api/pkg/database"
	"perfoptima-api/pkg/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatasetService(t *testing.T) (*DatasetService, *database.SalesStore) {
	t.Helper()
	db, err := database.New(database.Config{Path: database.MemoryPath, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := database.NewSalesStore(db)
	svc := NewDatasetService(
		store,
		NewScenarioSimulator(zeroNoise{}, fixedClock),
		NewSalesForecaster(),
		DatasetConfig{},
		zerolog.Nop(),
	)
	svc.now = fixedClock
	return svc, store
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestDatasetService(t)

	seeded, err := svc.Seed(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)

	n, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSimulationMonths, n)

	scenario, err := svc.CurrentScenario(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioGrowth, scenario)

	seeded, err = svc.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)
}

func TestSwitchScenario(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestDatasetService(t)

	res, err := svc.SwitchScenario(ctx, models.ScenarioDecline)
	require.NoError(t, err)
	assert.Equal(t, "Scenario switched to: DECLINE", res.Message)
	assert.Equal(t, 24, res.DataPoints)
	assert.NotEmpty(t, res.DatasetID)

	history, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 24)
	assert.Equal(t, 15000.0, history[0].Revenue)
	assert.Equal(t, 4924.55, history[23].Revenue)
	assert.Equal(t, "2026-10-19", history[23].Date.String())

	id, _, err := store.GetState(ctx, database.StateDatasetID)
	require.NoError(t, err)
	assert.Equal(t, res.DatasetID, id)

	// 切り替えるたびに新しいデータセットIDになる
	again, err := svc.SwitchScenario(ctx, models.ScenarioGrowth)
	require.NoError(t, err)
	assert.NotEqual(t, res.DatasetID, again.DatasetID)
}

func TestSwitchScenarioRejectsUnknown(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestDatasetService(t)

	for _, s := range []models.ScenarioType{"boom", "custom", "GROWTH", ""} {
		_, err := svc.SwitchScenario(ctx, s)
		assert.ErrorIs(t, err, ErrInvalidScenario, s)
	}
	n, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSwitchScenarioKeepsTarget(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)
	_, err := svc.Seed(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyOverride(ctx, models.ManualOverrideInput{CurrentRevenue: 12000, Target: 20000}))
	_, err = svc.SwitchScenario(ctx, models.ScenarioGrowth)
	require.NoError(t, err)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20000.0, status.Target)
	// 上書きした売上は新しいシナリオで置き換わる
	assert.Equal(t, 20624.55, status.CurrentMonthRevenue)
}

func TestStatusDefaultTarget(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)

	_, err := svc.Status(ctx)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = svc.Seed(ctx)
	require.NoError(t, err)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20624.55, status.CurrentMonthRevenue)
	assert.Equal(t, 15000.0, status.Target)
	assert.Equal(t, 37.5, status.PerformanceGap)
}

func TestApplyOverride(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)
	_, err := svc.Seed(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.ApplyOverride(ctx, models.ManualOverrideInput{CurrentRevenue: 12000, Target: 20000}))

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12000.0, status.CurrentMonthRevenue)
	assert.Equal(t, 20000.0, status.Target)
	assert.Equal(t, -40.0, status.PerformanceGap)

	history, err := svc.History(ctx)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, 240, last.UnitsSold)
	// 最新月以外は変更されない
	assert.Equal(t, 10000.0, history[0].Revenue)
}

func TestApplyOverrideValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)

	cases := []models.ManualOverrideInput{
		{CurrentRevenue: 1000, Target: 0},
		{CurrentRevenue: 1000, Target: -5},
		{CurrentRevenue: -1, Target: 1000},
		{CurrentRevenue: math.NaN(), Target: 1000},
		{CurrentRevenue: 1000, Target: math.Inf(1)},
	}
	for _, in := range cases {
		assert.ErrorIs(t, svc.ApplyOverride(ctx, in), ErrInvalidOverride)
	}
}

func TestApplyOverrideWithoutDataKeepsTarget(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestDatasetService(t)

	require.NoError(t, svc.ApplyOverride(ctx, models.ManualOverrideInput{CurrentRevenue: 5000, Target: 9000}))
	target, err := store.GetFloatState(ctx, database.StateTarget, 0)
	require.NoError(t, err)
	assert.Equal(t, 9000.0, target)
}

func TestImportRecords(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)

	_, err := svc.ImportRecords(ctx, nil)
	assert.ErrorIs(t, err, ErrNoData)

	res, err := svc.ImportRecords(ctx, monthly(1000, 2000, 3000, 4000))
	require.NoError(t, err)
	assert.Equal(t, 4, res.RecordsProcessed)
	assert.NotEmpty(t, res.DatasetID)

	scenario, err := svc.CurrentScenario(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioCustom, scenario)

	pred, err := svc.Predict(ctx, models.ModelLinear)
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, pred.NextMonthRevenueForecast, 0.01)
}

func TestPredictEmptyDataset(t *testing.T) {
	svc, _ := newTestDatasetService(t)

	pred, err := svc.Predict(context.Background(), models.ModelLinear)
	require.NoError(t, err)
	require.NotNil(t, pred.Alert)
	assert.Equal(t, AlertNoData, *pred.Alert)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)
	_, err := svc.ImportRecords(ctx, monthly(1000, 2000))
	require.NoError(t, err)
	require.NoError(t, svc.ApplyOverride(ctx, models.ManualOverrideInput{CurrentRevenue: 2500, Target: 3000}))

	res, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 24, res.DataPoints)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, status.Target)
	scenario, err := svc.CurrentScenario(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ScenarioGrowth, scenario)
}

func TestSnapshotPersistsLatest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)

	_, err := svc.LatestSnapshot(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
	_, err = svc.Snapshot(ctx, models.ModelLinear)
	assert.ErrorIs(t, err, ErrNoData)

	imported, err := svc.ImportRecords(ctx, monthly(10000, 10500, 11000, 11500, 12000, 12500))
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, models.ModelLinear, snap.Model)

	latest, err := svc.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, imported.DatasetID, latest.DatasetID)
	assert.Equal(t, models.ScenarioCustom, latest.Scenario)
	assert.Equal(t, 6, latest.DataPoints)
	assert.True(t, fixedClock().Equal(latest.GeneratedAt))
	assert.InDelta(t, 13000.0, latest.Prediction.NextMonthRevenueForecast, 0.01)
	assert.Equal(t, 0.95, latest.Prediction.ConfidenceScore)
}

func TestConcurrentSwitchAndPredict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestDatasetService(t)
	_, err := svc.Seed(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := svc.SwitchScenario(ctx, models.Scenarios[i%len(models.Scenarios)])
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			pred, err := svc.Predict(ctx, models.ModelPolynomial)
			if err == nil && pred.Alert != nil && *pred.Alert == AlertNoData {
				t.Errorf("predict observed an empty dataset")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}
