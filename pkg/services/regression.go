package services

import (
	"errors"
	"fmt"
	"math"

	"perfoptima-api/pkg/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrComputation 数値計算に失敗したことを示す（APIでは500として扱う）
	ErrComputation = errors.New("forecast computation failed")
	// ErrInsufficientData モデルの係数数に対してデータ点が不足している
	ErrInsufficientData = fmt.Errorf("%w: not enough data points for the requested model", ErrComputation)
	// ErrSingularFit 正規方程式が特異または悪条件で解けない
	ErrSingularFit = fmt.Errorf("%w: regression system is singular or ill-conditioned", ErrComputation)
)

// RegressionModel は特徴量展開と重み付き最小二乗フィットをまとめたモデル定義
type RegressionModel interface {
	Name() models.ModelType
	// Fit は重みwでy ~ f(x) をフィットする。入力は変更しない。
	Fit(x, y, w []float64) (*FittedModel, error)
}

// FittedModel は学習済みの多項式係数（定数項から昇順）
type FittedModel struct {
	Coefficients []float64
}

// Predict 学習済みモデルでxにおける値を計算
func (f *FittedModel) Predict(x float64) float64 {
	// ホーナー法
	var y float64
	for i := len(f.Coefficients) - 1; i >= 0; i-- {
		y = y*x + f.Coefficients[i]
	}
	return y
}

// PredictAll 各xに対する予測値を返す
func (f *FittedModel) PredictAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = f.Predict(x)
	}
	return out
}

// polynomialModel は 1, x, ..., x^degree への展開を行う線形回帰
// degree=1 が通常の線形回帰になる。
type polynomialModel struct {
	name   models.ModelType
	degree int
}

func (m polynomialModel) Name() models.ModelType { return m.name }

func (m polynomialModel) Fit(x, y, w []float64) (*FittedModel, error) {
	coef, err := weightedLeastSquares(polynomialFeatures(x, m.degree), y, w)
	if err != nil {
		return nil, fmt.Errorf("%s fit: %w", m.name, err)
	}
	return &FittedModel{Coefficients: coef}, nil
}

// polynomialFeatures 各xを [1, x, x^2, ..., x^degree] に展開する
func polynomialFeatures(x []float64, degree int) *mat.Dense {
	cols := degree + 1
	data := make([]float64, 0, len(x)*cols)
	for _, xi := range x {
		v := 1.0
		for d := 0; d < cols; d++ {
			data = append(data, v)
			v *= xi
		}
	}
	return mat.NewDense(len(x), cols, data)
}

// weightedLeastSquares は sum_i w_i (y_i - X_i·β)^2 を最小化するβを返す
// 各行を √w_i でスケールし、QR分解で解く。
func weightedLeastSquares(X *mat.Dense, y, w []float64) ([]float64, error) {
	n, p := X.Dims()
	if len(y) != n || len(w) != n {
		return nil, fmt.Errorf("%w: length mismatch (rows=%d, y=%d, w=%d)", ErrComputation, n, len(y), len(w))
	}
	if n < p {
		return nil, fmt.Errorf("%w: %d points for %d coefficients", ErrInsufficientData, n, p)
	}

	A := mat.NewDense(n, p, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if w[i] < 0 || math.IsNaN(w[i]) {
			return nil, fmt.Errorf("%w: invalid weight %v at row %d", ErrComputation, w[i], i)
		}
		sw := math.Sqrt(w[i])
		for j := 0; j < p; j++ {
			A.Set(i, j, X.At(i, j)*sw)
		}
		b.SetVec(i, y[i]*sw)
	}

	var qr mat.QR
	qr.Factorize(A)

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularFit, err)
	}

	coef := make([]float64, p)
	for j := 0; j < p; j++ {
		coef[j] = beta.AtVec(j)
		if math.IsNaN(coef[j]) || math.IsInf(coef[j], 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient", ErrSingularFit)
		}
	}
	return coef, nil
}

// weightedRSquared 重み付き決定係数
// 目的変数が一定の場合は全変動が0になるため、残差がほぼ0なら1、それ以外は0とする。
func weightedRSquared(estimates, values, weights []float64) float64 {
	if floats.Min(values) == floats.Max(values) {
		tol := 1e-6 * math.Max(1, math.Abs(values[0]))
		for i, v := range values {
			if math.Abs(v-estimates[i]) > tol {
				return 0
			}
		}
		return 1
	}
	return stat.RSquaredFrom(estimates, values, weights)
}

// recencyWeights 直近のデータほど大きくなる幾何重み base^i
func recencyWeights(n int, base float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Pow(base, float64(i))
	}
	return w
}
