package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"perfoptima-api/pkg/models"
)

// system_state のキー
const (
	StateCurrentScenario = "current_scenario"
	StateTarget          = "target"
	StateDatasetID       = "dataset_id"
	StateLastForecast    = "last_forecast"
)

// ErrNoRecords データセットが空
var ErrNoRecords = errors.New("no sales records stored")

// SalesStore は現在のデータセット（sales_records）とシステム状態（system_state）を管理します。
type SalesStore struct {
	db *DB
}

// NewSalesStore 新しいSalesStoreを作成
func NewSalesStore(db *DB) *SalesStore {
	return &SalesStore{db: db}
}

// ReplaceRecords データセット全体を置き換え、stateの各キーも同じトランザクションで保存する
// 途中で失敗した場合はレコードも状態も変更されない。
func (s *SalesStore) ReplaceRecords(ctx context.Context, records []models.SalesRecord, state map[string]string) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sales_records"); err != nil {
		return fmt.Errorf("failed to clear sales records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO sales_records (date, revenue, units_sold, region) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		region := r.Region
		if region == "" {
			region = models.DefaultRegion
		}
		if _, err := stmt.ExecContext(ctx, r.Date.String(), r.Revenue, r.UnitsSold, region); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	for key, value := range state {
		if err := setState(ctx, tx, key, value); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sales records: %w", err)
	}
	return nil
}

// ListRecords 日付の昇順で全レコードを返す
func (s *SalesStore) ListRecords(ctx context.Context) ([]models.SalesRecord, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		"SELECT date, revenue, units_sold, region FROM sales_records ORDER BY date ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sales records: %w", err)
	}
	defer rows.Close()

	records := make([]models.SalesRecord, 0)
	for rows.Next() {
		var (
			dateStr string
			r       models.SalesRecord
		)
		if err := rows.Scan(&dateStr, &r.Revenue, &r.UnitsSold, &r.Region); err != nil {
			return nil, fmt.Errorf("failed to scan sales record: %w", err)
		}
		if r.Date, err = models.ParseDate(dateStr); err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", dateStr, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sales records: %w", err)
	}
	return records, nil
}

// CountRecords レコード件数
func (s *SalesStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM sales_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sales records: %w", err)
	}
	return n, nil
}

// UpdateLatestRevenue 最新月のレコードの売上と販売数を更新する
func (s *SalesStore) UpdateLatestRevenue(ctx context.Context, revenue float64, unitsSold int) (*models.SalesRecord, error) {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id      int64
		dateStr string
		region  string
	)
	err = tx.QueryRowContext(ctx,
		"SELECT id, date, region FROM sales_records ORDER BY date DESC, id DESC LIMIT 1").Scan(&id, &dateStr, &region)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecords
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sales_records SET revenue = ?, units_sold = ? WHERE id = ?", revenue, unitsSold, id); err != nil {
		return nil, fmt.Errorf("failed to update latest record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit override: %w", err)
	}

	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stored date %q: %w", dateStr, err)
	}
	return &models.SalesRecord{Date: date, Revenue: revenue, UnitsSold: unitsSold, Region: region}, nil
}

// GetState キーの値を返す。存在しない場合は ok=false
func (s *SalesStore) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.conn.QueryRowContext(ctx, "SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state %s: %w", key, err)
	}
	return value, true, nil
}

// SetState キーの値を保存（既存なら上書き）
func (s *SalesStore) SetState(ctx context.Context, key, value string) error {
	return setState(ctx, s.db.conn, key, value)
}

// execer *sql.DB と *sql.Tx の共通部分
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setState(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO system_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}
	return nil
}

// GetFloatState 数値として保存された状態を返す。未設定ならdefを返す
func (s *SalesStore) GetFloatState(ctx context.Context, key string, def float64) (float64, error) {
	value, ok, err := s.GetState(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("state %s is not a number (%q): %w", key, value, err)
	}
	return f, nil
}

// SetFloatState 数値を状態として保存
func (s *SalesStore) SetFloatState(ctx context.Context, key string, value float64) error {
	return s.SetState(ctx, key, strconv.FormatFloat(value, 'f', -1, 64))
}
