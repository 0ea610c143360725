package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear annualises per-bar Sharpe ratios.
const TradingDaysPerYear = 252

// CountTrades counts bars whose position changed by exactly one unit, so an
// entry and its exit are two separate events.
func CountTrades(positions []Position) int {
	n := 0
	for i := 1; i < len(positions); i++ {
		d := positions[i] - positions[i-1]
		if d == 1 || d == -1 {
			n++
		}
	}
	return n
}

// SharpeRatio returns mean(pnl)/std(pnl)·√252 with a sample standard
// deviation. Zero or undefined volatility yields 0.
func SharpeRatio(pnl []float64) float64 {
	if len(pnl) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(pnl, nil)
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// WinRate returns the share of profitable bars per trade event, in percent.
// It is 0 when no trades occurred.
func WinRate(pnl []float64, tradeCount int) float64 {
	if tradeCount == 0 {
		return 0
	}
	wins := 0
	for _, v := range pnl {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(tradeCount) * 100
}

// MaxDrawdown returns max_i(runningMax(cum)_i − cum_i), with the running max
// starting at zero.
func MaxDrawdown(cum []float64) float64 {
	peak, dd := 0.0, 0.0
	for _, v := range cum {
		if v > peak {
			peak = v
		}
		if peak-v > dd {
			dd = peak - v
		}
	}
	return dd
}
