package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairs-systemv1/internal/model"
)

func linearPair(n int, alpha, beta float64) ([]model.PricePoint, []model.PricePoint) {
	x := make([]model.PricePoint, n)
	y := make([]model.PricePoint, n)
	for i := 0; i < n; i++ {
		ts := t0.Add(time.Duration(i) * time.Minute)
		yv := 100 + 5*math.Sin(float64(i)/3) + float64(i)*0.1
		y[i] = model.PricePoint{TS: ts, Value: yv}
		x[i] = model.PricePoint{TS: ts, Value: alpha + beta*yv}
	}
	return x, y
}

func TestEstimateHedge_InsufficientUsesAlignedCount(t *testing.T) {
	x, y := linearPair(40, 1, 2)
	// Only 10 timestamps overlap after alignment.
	a := Align(x, y[:10])

	res := EstimateHedge(a, 30)
	ins, ok := res.(HedgeInsufficientData)
	require.True(t, ok, "expected HedgeInsufficientData, got %T", res)
	assert.Equal(t, 10, ins.NObs)
	assert.Equal(t, 30, ins.MinRequired)
	assert.Equal(t, StatusInsufficientData, HedgeStatus(res))
}

func TestEstimateHedge_ConstantYFails(t *testing.T) {
	n := 40
	x := make([]model.PricePoint, n)
	y := make([]model.PricePoint, n)
	for i := 0; i < n; i++ {
		ts := t0.Add(time.Duration(i) * time.Minute)
		x[i] = model.PricePoint{TS: ts, Value: 100 + float64(i)}
		y[i] = model.PricePoint{TS: ts, Value: 250}
	}

	res := EstimateHedge(Align(x, y), 30)
	failed, ok := res.(HedgeRegressionFailed)
	require.True(t, ok, "expected HedgeRegressionFailed, got %T", res)
	assert.Equal(t, ReasonRankDeficient, failed.Reason)
	assert.Equal(t, 40, failed.NObs)
}

func TestEstimateHedge_RecoversSlope(t *testing.T) {
	x, y := linearPair(60, 12.5, 1.75)

	res := EstimateHedge(Align(x, y), 30)
	okRes, ok := res.(HedgeOK)
	require.True(t, ok, "expected HedgeOK, got %T", res)
	assert.InDelta(t, 1.75, okRes.Ratio, 1e-8)
	assert.Equal(t, 60, okRes.NObs)
}

func TestEstimateHedge_Deterministic(t *testing.T) {
	x, y := linearPair(80, -3, 0.42)
	for i := range x {
		x[i].Value += 0.3 * math.Cos(float64(i)*1.7)
	}
	a := Align(x, y)

	first := EstimateHedge(a, 30).(HedgeOK)
	for i := 0; i < 5; i++ {
		again := EstimateHedge(a, 30).(HedgeOK)
		assert.Equal(t, first.Ratio, again.Ratio)
	}
}

func TestEstimateHedge_DefaultMinSamples(t *testing.T) {
	x, y := linearPair(29, 0, 1)
	res := EstimateHedge(Align(x, y), 0)
	ins, ok := res.(HedgeInsufficientData)
	require.True(t, ok)
	assert.Equal(t, DefaultHedgeMinSamples, ins.MinRequired)
}
