package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"perfoptima-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SalesStore {
	t.Helper()
	db, err := New(Config{Path: MemoryPath, Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSalesStore(db)
}

func record(date string, revenue float64) models.SalesRecord {
	d, _ := models.ParseDate(date)
	return models.SalesRecord{Date: d, Revenue: revenue, UnitsSold: int(revenue / 50), Region: "Global"}
}

func TestReplaceAndListRecords(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	records := []models.SalesRecord{
		record("2026-03-01", 12000),
		record("2026-01-01", 10000),
		record("2026-02-01", 11000.55),
	}
	require.NoError(t, store.ReplaceRecords(ctx, records, nil))

	got, err := store.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2026-01-01", got[0].Date.String())
	assert.Equal(t, "2026-02-01", got[1].Date.String())
	assert.Equal(t, 11000.55, got[1].Revenue)
	assert.Equal(t, 220, got[1].UnitsSold)
	assert.Equal(t, "2026-03-01", got[2].Date.String())

	// 置き換えは前のデータセットを完全に破棄する
	require.NoError(t, store.ReplaceRecords(ctx, []models.SalesRecord{record("2025-12-01", 5000)}, nil))
	n, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReplaceRecordsDefaultsRegion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	r := record("2026-01-01", 10000)
	r.Region = ""
	require.NoError(t, store.ReplaceRecords(ctx, []models.SalesRecord{r}, nil))

	got, err := store.ListRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Global", got[0].Region)
}

func TestReplaceRecordsRollsBackOnCancel(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.ReplaceRecords(context.Background(),
		[]models.SalesRecord{record("2026-01-01", 10000)},
		map[string]string{StateCurrentScenario: "growth", StateDatasetID: "first"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.ReplaceRecords(ctx,
		[]models.SalesRecord{record("2026-02-01", 1)},
		map[string]string{StateCurrentScenario: "custom", StateDatasetID: "second"})
	require.Error(t, err)

	got, err := store.ListRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10000.0, got[0].Revenue)

	scenario, _, err := store.GetState(context.Background(), StateCurrentScenario)
	require.NoError(t, err)
	assert.Equal(t, "growth", scenario)
}

func TestReplaceRecordsWritesStateTogether(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceRecords(ctx,
		[]models.SalesRecord{record("2026-01-01", 10000)},
		map[string]string{StateCurrentScenario: "custom", StateDatasetID: "abc"}))

	scenario, ok, err := store.GetState(ctx, StateCurrentScenario)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "custom", scenario)
	id, _, err := store.GetState(ctx, StateDatasetID)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestReplaceRecordsStateFailureKeepsOldDataset(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.ReplaceRecords(ctx,
		[]models.SalesRecord{record("2026-01-01", 10000)},
		map[string]string{StateCurrentScenario: "growth"}))

	// 状態の書き込みだけが失敗するようにする
	_, err := store.db.conn.ExecContext(ctx, `CREATE TRIGGER reject_dataset_id BEFORE INSERT ON system_state
		WHEN NEW.key = 'dataset_id' BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	err = store.ReplaceRecords(ctx,
		[]models.SalesRecord{record("2026-02-01", 1), record("2026-03-01", 2)},
		map[string]string{StateDatasetID: "new"})
	require.Error(t, err)

	n, err := store.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateLatestRevenue(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.UpdateLatestRevenue(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrNoRecords)

	require.NoError(t, store.ReplaceRecords(ctx, []models.SalesRecord{
		record("2026-01-01", 10000),
		record("2026-02-01", 11000),
	}, nil))

	updated, err := store.UpdateLatestRevenue(ctx, 15000, 300)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", updated.Date.String())

	got, err := store.ListRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, got[0].Revenue)
	assert.Equal(t, 15000.0, got[1].Revenue)
	assert.Equal(t, 300, got[1].UnitsSold)
}

func TestSystemState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, ok, err := store.GetState(ctx, StateCurrentScenario)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetState(ctx, StateCurrentScenario, "growth"))
	require.NoError(t, store.SetState(ctx, StateCurrentScenario, "custom"))
	v, ok, err := store.GetState(ctx, StateCurrentScenario)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "custom", v)

	target, err := store.GetFloatState(ctx, StateTarget, 15000)
	require.NoError(t, err)
	assert.Equal(t, 15000.0, target)

	require.NoError(t, store.SetFloatState(ctx, StateTarget, 18250.5))
	target, err = store.GetFloatState(ctx, StateTarget, 15000)
	require.NoError(t, err)
	assert.Equal(t, 18250.5, target)

	require.NoError(t, store.SetState(ctx, StateTarget, "abc"))
	_, err = store.GetFloatState(ctx, StateTarget, 15000)
	assert.Error(t, err)
}

func TestFileDatabasePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "perfoptima.db")

	db, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, NewSalesStore(db).ReplaceRecords(ctx, []models.SalesRecord{record("2026-01-01", 10000)}, nil))
	require.NoError(t, db.HealthCheck(ctx))
	require.NoError(t, db.Close())

	reopened, err := New(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := NewSalesStore(reopened).ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), got[0].Date.Time)
}
