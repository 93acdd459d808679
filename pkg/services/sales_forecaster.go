package services

import (
	"fmt"
	"math"
	"sort"

	"perfoptima-api/pkg/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// アラート文言
const (
	AlertNoData     = "No data provided"
	AlertCrash      = "CRITICAL: Sudden revenue crash detected (-30%)."
	AlertSteepDrop  = "WARNING: Forecast indicates steep decline next month."
	AlertRecovery   = "INSIGHT: Recovery phase expected. Rebound in progress."
	AlertNewRecord  = "OPPORTUNITY: New record growth predicted. Prepare inventory."
	AlertVolatility = "CAUTION: Market volatility high. Forecast uncertain."
)

const (
	// RecencyWeightBase 月インデックスごとの重みの増加率
	RecencyWeightBase = 1.15

	minConfidence = 0.10
	maxConfidence = 0.95
)

// ErrZeroMeanRevenue 平均売上が0で誤差比率が計算できない
var ErrZeroMeanRevenue = fmt.Errorf("%w: mean revenue is zero", ErrComputation)

// SalesForecaster 売上履歴から翌月の売上を予測する
// モデル定義は作成時に固定され、呼び出しごとに新しくフィットする。
type SalesForecaster struct {
	registry     map[models.ModelType]RegressionModel
	defaultModel models.ModelType
}

// NewSalesForecaster 線形・2次・3次の3モデルを持つ予測器を作成
func NewSalesForecaster() *SalesForecaster {
	registry := map[models.ModelType]RegressionModel{}
	for _, m := range []polynomialModel{
		{name: models.ModelLinear, degree: 1},
		{name: models.ModelPolynomial, degree: 2},
		{name: models.ModelPolynomialHigh, degree: 3},
	} {
		registry[m.name] = m
	}
	return &SalesForecaster{
		registry:     registry,
		defaultModel: models.ModelLinear,
	}
}

// Model 選択キーに対応するモデルを返す（未知のキーは線形回帰）
func (f *SalesForecaster) Model(modelType models.ModelType) RegressionModel {
	if m, ok := f.registry[modelType]; ok {
		return m
	}
	return f.registry[f.defaultModel]
}

// Predict 履歴から翌月の売上予測・信頼度・トレンド・アラートを計算する
// 数値的に解けない場合は ErrComputation をラップしたエラーを返す。
func (f *SalesForecaster) Predict(history []models.SalesRecord, modelType models.ModelType) (*models.PredictionResponse, error) {
	if len(history) == 0 {
		alert := AlertNoData
		return &models.PredictionResponse{
			NextMonthRevenueForecast: 0.0,
			ConfidenceScore:          0.0,
			Trend:                    models.TrendStable,
			Alert:                    &alert,
		}, nil
	}

	// 日付順に並べ替え（呼び出し元のスライスは変更しない）
	sorted := make([]models.SalesRecord, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})

	n := len(sorted)
	x := make([]float64, n)
	y := make([]float64, n)
	for i, r := range sorted {
		x[i] = float64(i)
		y[i] = r.Revenue
	}
	weights := recencyWeights(n, RecencyWeightBase)

	model := f.Model(modelType)
	fitted, err := model.Fit(x, y, weights)
	if err != nil {
		return nil, err
	}

	prediction := roundTo(fitted.Predict(float64(n)), 2)
	if math.IsNaN(prediction) || math.IsInf(prediction, 0) {
		return nil, fmt.Errorf("%w: non-finite forecast", ErrComputation)
	}

	lastActual := y[n-1]
	trend := classifyTrend(prediction, lastActual)

	confidence, err := confidenceScore(fitted, x, y, weights)
	if err != nil {
		return nil, err
	}

	// アラート判定は丸める前の値で行う
	return &models.PredictionResponse{
		NextMonthRevenueForecast: prediction,
		ConfidenceScore:          roundTo(confidence, 2),
		Trend:                    trend,
		Alert:                    deriveAlert(y, prediction, confidence),
	}, nil
}

// classifyTrend 予測値を直近の実績と比較してトレンドを判定（±5%）
func classifyTrend(prediction, lastActual float64) models.Trend {
	switch {
	case prediction > lastActual*1.05:
		return models.TrendUp
	case prediction < lastActual*0.95:
		return models.TrendDown
	default:
		return models.TrendStable
	}
}

// confidenceScore 重み付きR²をベースに、残差の大きさと直近の変動でペナルティを与える
// 戻り値は [0.10, 0.95] に収めた丸め前の値。
func confidenceScore(fitted *FittedModel, x, y, weights []float64) (float64, error) {
	estimates := fitted.PredictAll(x)
	r2 := weightedRSquared(estimates, y, weights)

	residuals := make([]float64, len(y))
	floats.SubTo(residuals, y, estimates)
	residualStd := stat.PopStdDev(residuals, nil)
	meanRevenue := stat.Mean(y, nil)
	if meanRevenue == 0 {
		return 0, ErrZeroMeanRevenue
	}

	// 残差が売上平均の15%を超える場合は大きく減点
	errorRatio := residualStd / meanRevenue
	confidence := r2
	if errorRatio > 0.15 {
		confidence -= errorRatio * 2
	}

	// 直近3ヶ月のばらつき（1点のみの場合はNaNとなり減点しない）
	if lastStd := stat.StdDev(tail(y, 3), nil); lastStd > 2000 {
		confidence -= 0.25
	}

	if math.IsNaN(confidence) {
		return 0, fmt.Errorf("%w: confidence is not a number", ErrComputation)
	}
	return math.Max(math.Min(confidence, maxConfidence), minConfidence), nil
}

// deriveAlert 優先順位に従って最大1件のアラートを決定する
func deriveAlert(revenues []float64, prediction, confidence float64) *string {
	n := len(revenues)
	lastActual := revenues[n-1]

	var alert string
	switch {
	case n >= 2 && lastActual < revenues[n-2]*0.7:
		alert = AlertCrash
	case prediction < lastActual*0.8:
		alert = AlertSteepDrop
	case prediction > lastActual*1.2:
		// 回復局面か新記録かを直近6ヶ月の最大値で区別
		if prediction < floats.Max(tail(revenues, 6)) {
			alert = AlertRecovery
		} else {
			alert = AlertNewRecord
		}
	case confidence < 0.5:
		alert = AlertVolatility
	default:
		return nil
	}
	return &alert
}

// tail スライスの末尾k件（k件未満なら全体）
func tail(values []float64, k int) []float64 {
	if len(values) <= k {
		return values
	}
	return values[len(values)-k:]
}
