package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout APIとDBで共通の日付フォーマット
const DateLayout = "2006-01-02"

// DefaultRegion 地域が指定されない場合の既定値
const DefaultRegion = "Global"

// ScenarioType シミュレーションのシナリオ名
type ScenarioType string

const (
	ScenarioGrowth   ScenarioType = "growth"
	ScenarioDecline  ScenarioType = "decline"
	ScenarioSeasonal ScenarioType = "seasonal"
	ScenarioVolatile ScenarioType = "volatile"
	// ScenarioCustom はアップロードされたデータセットを示す（シミュレーション対象外）
	ScenarioCustom ScenarioType = "custom"
)

// Scenarios シミュレーション可能なシナリオ一覧
var Scenarios = []ScenarioType{ScenarioGrowth, ScenarioDecline, ScenarioSeasonal, ScenarioVolatile}

// IsSimulated シミュレータが扱えるシナリオかどうか
func (s ScenarioType) IsSimulated() bool {
	for _, sc := range Scenarios {
		if s == sc {
			return true
		}
	}
	return false
}

// ModelType 予測モデルの選択キー
type ModelType string

const (
	ModelLinear         ModelType = "linear"
	ModelPolynomial     ModelType = "polynomial"
	ModelPolynomialHigh ModelType = "polynomial_high"
)

// Trend 予測トレンド
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Date は "YYYY-MM-DD" 形式でJSONに変換される日付
type Date struct {
	time.Time
}

// NewDate 時刻部分を切り捨てたDateを作成
func NewDate(t time.Time) Date {
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate "YYYY-MM-DD" をDateに変換
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return NewDate(t), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	*d = parsed
	return nil
}

// SalesRecord 月次の売上データ1件
type SalesRecord struct {
	Date      Date    `json:"date"`
	Revenue   float64 `json:"revenue"`
	UnitsSold int     `json:"units_sold"`
	Region    string  `json:"region"`
}

// PredictionResponse 翌月の売上予測結果
type PredictionResponse struct {
	NextMonthRevenueForecast float64 `json:"next_month_revenue_forecast"`
	ConfidenceScore          float64 `json:"confidence_score"`
	Trend                    Trend   `json:"trend"`
	Alert                    *string `json:"alert"`
}

// ManualOverrideInput 手動入力（今月の売上と目標値）
type ManualOverrideInput struct {
	CurrentRevenue float64 `json:"current_revenue"`
	Target         float64 `json:"target"`
}

// StatusResponse 現在の実績と目標とのギャップ
type StatusResponse struct {
	CurrentMonthRevenue float64 `json:"current_month_revenue"`
	Target              float64 `json:"target"`
	PerformanceGap      float64 `json:"performance_gap"` // 目標比（%）
}

// ScenarioResponse シナリオ切り替えの結果
type ScenarioResponse struct {
	Message    string `json:"message"`
	DataPoints int    `json:"data_points"`
	DatasetID  string `json:"dataset_id,omitempty"`
}

// UploadResponse ファイル取り込みの結果
type UploadResponse struct {
	Message          string `json:"message"`
	RecordsProcessed int    `json:"records_processed"`
	DatasetID        string `json:"dataset_id,omitempty"`
}

// ForecastSnapshot 定期ジョブが保存する予測結果
type ForecastSnapshot struct {
	DatasetID   string             `json:"dataset_id"`
	Scenario    ScenarioType       `json:"scenario"`
	Model       ModelType          `json:"model"`
	DataPoints  int                `json:"data_points"`
	GeneratedAt time.Time          `json:"generated_at"`
	Prediction  PredictionResponse `json:"prediction"`
}
