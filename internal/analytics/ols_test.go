package analytics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFitOLS_ExactLine(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6}
	design := mat.NewDense(len(xs), 2, nil)
	y := make([]float64, len(xs))
	for i, v := range xs {
		design.Set(i, 0, 1)
		design.Set(i, 1, v)
		y[i] = 2 + 3*v
	}

	fit, err := FitOLS(y, design)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, fit.Params[0], 1e-9)
	assert.InDelta(t, 3.0, fit.Params[1], 1e-9)
	assert.InDelta(t, 0.0, fit.SSR, 1e-18)
	assert.Equal(t, 4, fit.DFResid)
}

func TestFitOLS_StdErrMatchesClosedForm(t *testing.T) {
	// Simple regression: se(slope) = sqrt(σ² / Σ(x−x̄)²).
	xs := []float64{1, 2, 3, 4, 5}
	y := []float64{1.1, 1.9, 3.2, 3.9, 5.1}
	design := mat.NewDense(len(xs), 2, nil)
	for i, v := range xs {
		design.Set(i, 0, 1)
		design.Set(i, 1, v)
	}

	fit, err := FitOLS(y, design)
	require.NoError(t, err)

	sxx := 10.0 // Σ(x−3)²
	sigma2 := fit.SSR / 3
	assert.InDelta(t, sigma2/sxx, fit.StdErr[1]*fit.StdErr[1], 1e-12)
}

func TestFitOLS_RankDeficient(t *testing.T) {
	design := mat.NewDense(5, 2, []float64{
		1, 7,
		1, 7,
		1, 7,
		1, 7,
		1, 7,
	})
	_, err := FitOLS([]float64{1, 2, 3, 4, 5}, design)
	assert.True(t, errors.Is(err, ErrRankDeficient), "expected ErrRankDeficient, got %v", err)
}

func TestFitOLS_TooFewRows(t *testing.T) {
	design := mat.NewDense(1, 2, []float64{1, 3})
	_, err := FitOLS([]float64{1}, design)
	assert.ErrorIs(t, err, ErrRankDeficient)
}
