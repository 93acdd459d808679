package services

import (
	"math"
	"math/rand/v2"
	"time"

	"perfoptima-api/pkg/models"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultSimulationMonths 生成する月数の既定値
	DefaultSimulationMonths = 24

	baseRevenue    = 10000.0
	revenueFloor   = 2000.0
	unitPrice      = 50.0 // 1個あたりの想定単価
	simulationStep = 30   // 日
	defaultNoise   = 500.0
	volatileNoise  = 2000.0
)

// NoiseSource はシミュレーションに加えるガウスノイズを生成する
type NoiseSource interface {
	// Normal は平均0、標準偏差sigmaの正規乱数を返す
	Normal(sigma float64) float64
}

// gaussianNoise は distuv.Normal によるNoiseSource実装
type gaussianNoise struct {
	src rand.Source
}

// NewGaussianNoise シード付きのガウスノイズ生成器を作成
func NewGaussianNoise(seed uint64) NoiseSource {
	return &gaussianNoise{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

func (g *gaussianNoise) Normal(sigma float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: g.src}.Rand()
}

// ScenarioSimulator シナリオに沿った月次売上データを生成する
type ScenarioSimulator struct {
	noise NoiseSource
	now   func() time.Time
}

// NewScenarioSimulator 新しいシミュレータを作成
// noiseがnilの場合は現在時刻をシードにしたガウスノイズを使う。
func NewScenarioSimulator(noise NoiseSource, now func() time.Time) *ScenarioSimulator {
	if noise == nil {
		noise = NewGaussianNoise(uint64(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &ScenarioSimulator{noise: noise, now: now}
}

// Generate 指定シナリオの売上履歴を古い順に生成する
// 未知のシナリオは失敗せず、一定値10000のフラットな系列になる。
func (s *ScenarioSimulator) Generate(scenario models.ScenarioType, months int) []models.SalesRecord {
	if months <= 0 {
		months = DefaultSimulationMonths
	}

	// 今日を終点とした30日刻みの日付（古い順）
	today := models.NewDate(s.now())
	records := make([]models.SalesRecord, 0, months)

	for i := 0; i < months; i++ {
		t := float64(i)
		date := today.AddDate(0, 0, -simulationStep*(months-1-i))

		var revenue float64
		switch scenario {
		case models.ScenarioGrowth:
			// 線形成長 + 緩やかな季節性
			revenue = baseRevenue + t*500 + math.Sin(t/2)*1000 + s.noise.Normal(defaultNoise)
		case models.ScenarioDecline:
			// ピークからの線形減少
			revenue = baseRevenue + 5000 - t*400 + math.Sin(t/2)*1000 + s.noise.Normal(defaultNoise)
		case models.ScenarioSeasonal:
			// 強い季節変動
			revenue = baseRevenue + math.Sin(t/1.5)*4000 + t*100 + s.noise.Normal(defaultNoise)
		case models.ScenarioVolatile:
			revenue = baseRevenue + t*100 + s.noise.Normal(volatileNoise)
		default:
			revenue = baseRevenue
		}

		revenue = roundTo(math.Max(revenue, revenueFloor), 2)

		records = append(records, models.SalesRecord{
			Date:      models.NewDate(date),
			Revenue:   revenue,
			UnitsSold: UnitsForRevenue(revenue),
			Region:    models.DefaultRegion,
		})
	}

	return records
}

// UnitsForRevenue 売上から販売数を概算（単価50想定）
func UnitsForRevenue(revenue float64) int {
	return int(math.Floor(revenue / unitPrice))
}

// roundTo 小数点以下places桁に丸める
func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
