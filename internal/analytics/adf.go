package analytics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultADFMinSamples is the minimum spread length for the ADF test.
const DefaultADFMinSamples = 50

// adfFloor is the smallest sample the lag-selection regressions can run on.
const adfFloor = 10

// StationaryAlpha is the p-value cut used to classify a spread as mean-reverting.
const StationaryAlpha = 0.05

// ADFResult is one of ADFOK or ADFInsufficientData.
type ADFResult interface {
	adfResult()
}

// ADFOK is a completed augmented Dickey-Fuller test.
type ADFOK struct {
	Statistic      float64
	PValue         float64
	UsedLag        int
	NObs           int                // observations in the final regression
	CriticalValues map[string]float64 // keyed "1%", "5%", "10%"
}

// ADFInsufficientData is returned when the spread is shorter than MinRequired.
type ADFInsufficientData struct {
	NObs        int
	MinRequired int
}

func (ADFOK) adfResult()               {}
func (ADFInsufficientData) adfResult() {}

// Stationary reports p < alpha. NaN p-values are never stationary.
func (r ADFOK) Stationary(alpha float64) bool {
	return r.PValue < alpha
}

// ADFStatus returns the status label of r.
func ADFStatus(r ADFResult) string {
	switch r.(type) {
	case ADFOK:
		return StatusOK
	case ADFInsufficientData:
		return StatusInsufficientData
	default:
		return StatusSkipped
	}
}

// ADF runs the augmented Dickey-Fuller unit-root test with a constant and
// AIC lag selection over 0..maxlag, maxlag = ceil(12·(n/100)^¼) capped at n/2−2.
// Non-finite values are dropped first. minSamples <= 0 selects
// DefaultADFMinSamples; values below the regression floor are raised to it.
//
// A degenerate spread (constant, or perfectly collinear with its lags) still
// returns ADFOK, with NaN statistic and p-value.
func ADF(series []float64, minSamples int) ADFResult {
	if minSamples <= 0 {
		minSamples = DefaultADFMinSamples
	}
	if minSamples < adfFloor {
		minSamples = adfFloor
	}

	x := make([]float64, 0, len(series))
	for _, v := range series {
		if finite(v) {
			x = append(x, v)
		}
	}
	n := len(x)
	if n < minSamples {
		return ADFInsufficientData{NObs: n, MinRequired: minSamples}
	}

	maxlag := int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 2; maxlag > limit {
		maxlag = limit
	}

	dx := make([]float64, n-1)
	for i := range dx {
		dx[i] = x[i+1] - x[i]
	}

	// Lag selection: every candidate shares the sample trimmed for maxlag.
	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxlag; lag++ {
		y, design := adfDesign(x, dx, maxlag, lag)
		fit, err := FitOLS(y, design)
		if err != nil {
			continue
		}
		if aic := fit.AIC(); aic < bestAIC {
			bestAIC, bestLag = aic, lag
		}
	}

	y, design := adfDesign(x, dx, bestLag, bestLag)
	nobs := len(y)
	res := ADFOK{
		Statistic:      math.NaN(),
		PValue:         math.NaN(),
		UsedLag:        bestLag,
		NObs:           nobs,
		CriticalValues: MacKinnonCrit(nobs),
	}
	fit, err := FitOLS(y, design)
	if err != nil {
		return res
	}
	// Column 1 is the lagged level; its t-value is the ADF statistic.
	res.Statistic = fit.TValue(1)
	res.PValue = MacKinnonP(res.Statistic)
	return res
}

// adfDesign builds Δx_t = c + γ·x_{t−1}… regressions: rows start at `trim` so
// that `lag` lagged differences are available, columns are
// [1, x_t, Δx_{t−1}, …, Δx_{t−lag}] for dependent Δx_t (dx[t] = x[t+1] − x[t]).
func adfDesign(x, dx []float64, trim, lag int) ([]float64, *mat.Dense) {
	rows := len(dx) - trim
	cols := 2 + lag
	y := make([]float64, rows)
	design := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		t := trim + r
		y[r] = dx[t]
		design.Set(r, 0, 1)
		design.Set(r, 1, x[t])
		for j := 1; j <= lag; j++ {
			design.Set(r, 1+j, dx[t-j])
		}
	}
	return y, design
}
