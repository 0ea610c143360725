package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTrades_Scenario(t *testing.T) {
	positions := []Position{0, 0, 1, 1, 0, -1}
	assert.Equal(t, 3, CountTrades(positions))
}

func TestCountTrades_Empty(t *testing.T) {
	assert.Equal(t, 0, CountTrades(nil))
	assert.Equal(t, 0, CountTrades([]Position{1}))
}

func TestSharpeRatio_ZeroPnL(t *testing.T) {
	pnl := []float64{0, 0, 0, 0}
	s := SharpeRatio(pnl)
	assert.Equal(t, 0.0, s)
	assert.False(t, math.IsNaN(s))
	assert.Equal(t, 0.0, WinRate(pnl, CountTrades([]Position{0, 0, 0, 0, 0})))
}

func TestSharpeRatio_Known(t *testing.T) {
	// mean 1, sample std 1.
	pnl := []float64{0, 1, 2}
	assert.InDelta(t, math.Sqrt(252), SharpeRatio(pnl), 1e-12)
}

func TestSharpeRatio_SingleBar(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio([]float64{5}))
}

func TestWinRate(t *testing.T) {
	assert.InDelta(t, 50.0, WinRate([]float64{1, -1, 2, 0}, 4), 1e-12)
	assert.Equal(t, 0.0, WinRate([]float64{1, 2}, 0))
}

func TestMaxDrawdown(t *testing.T) {
	assert.InDelta(t, 6.0, MaxDrawdown([]float64{0, 2, 5, 1, -1, 3, 4}), 1e-12)
	assert.InDelta(t, 3.0, MaxDrawdown([]float64{0, -1, -3, -2}), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}
