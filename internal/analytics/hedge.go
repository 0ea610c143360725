package analytics

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// DefaultHedgeMinSamples is the minimum aligned row count for a hedge fit.
const DefaultHedgeMinSamples = 30

// ReasonRankDeficient is the RegressionFailed reason for a degenerate Y.
const ReasonRankDeficient = "insufficient variance or rank deficiency"

// HedgeResult is one of HedgeOK, HedgeInsufficientData or HedgeRegressionFailed.
type HedgeResult interface {
	hedgeResult()
}

// HedgeOK carries the fitted slope of X on Y.
type HedgeOK struct {
	Ratio float64
	NObs  int
}

// HedgeInsufficientData is returned when fewer than MinRequired aligned rows exist.
type HedgeInsufficientData struct {
	NObs        int
	MinRequired int
}

// HedgeRegressionFailed is returned when Y is constant or collinear with the intercept.
type HedgeRegressionFailed struct {
	Reason string
	NObs   int
}

func (HedgeOK) hedgeResult()               {}
func (HedgeInsufficientData) hedgeResult() {}
func (HedgeRegressionFailed) hedgeResult() {}

// Status labels used on the wire and in metrics.
const (
	StatusOK               = "ok"
	StatusInsufficientData = "insufficient_data"
	StatusRegressionFailed = "regression_failed"
	StatusSkipped          = "skipped"
)

// HedgeStatus returns the status label of r.
func HedgeStatus(r HedgeResult) string {
	switch r.(type) {
	case HedgeOK:
		return StatusOK
	case HedgeInsufficientData:
		return StatusInsufficientData
	case HedgeRegressionFailed:
		return StatusRegressionFailed
	default:
		return StatusSkipped
	}
}

// EstimateHedge fits X ≈ α + β·Y by OLS over the aligned rows and returns β.
// minSamples <= 0 selects DefaultHedgeMinSamples.
func EstimateHedge(a Aligned, minSamples int) HedgeResult {
	if minSamples <= 0 {
		minSamples = DefaultHedgeMinSamples
	}
	n := a.Len()
	if n < minSamples {
		return HedgeInsufficientData{NObs: n, MinRequired: minSamples}
	}

	design := mat.NewDense(n, 2, nil)
	for i, y := range a.Y {
		design.Set(i, 0, 1)
		design.Set(i, 1, y)
	}

	fit, err := FitOLS(a.X, design)
	if err != nil {
		if errors.Is(err, ErrRankDeficient) {
			return HedgeRegressionFailed{Reason: ReasonRankDeficient, NObs: n}
		}
		return HedgeRegressionFailed{Reason: err.Error(), NObs: n}
	}
	if len(fit.Params) < 2 || !finite(fit.Params[1]) {
		return HedgeRegressionFailed{Reason: ReasonRankDeficient, NObs: n}
	}
	return HedgeOK{Ratio: fit.Params[1], NObs: n}
}
