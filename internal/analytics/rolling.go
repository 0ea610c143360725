package analytics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Spread returns x_t − ratio·y_t for every aligned row.
func Spread(a Aligned, ratio float64) []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.X[i] - ratio*a.Y[i]
	}
	return out
}

// ZScore returns the rolling z-score of s over a trailing window of w values
// (including the current one). Mean and standard deviation are both sample
// statistics (n−1 denominator). Indices before the window fills are None; a
// window with zero variance or a non-finite member yields NaN.
func ZScore(s []float64, w int) []Opt {
	out := make([]Opt, len(s))
	if w <= 0 {
		return out
	}
	for i := w - 1; i < len(s); i++ {
		win := s[i-w+1 : i+1]
		if !allFinite(win) || flat(win) {
			out[i] = Some(math.NaN())
			continue
		}
		mean, std := stat.MeanStdDev(win, nil)
		if std == 0 || !finite(std) {
			out[i] = Some(math.NaN())
			continue
		}
		out[i] = Some((s[i] - mean) / std)
	}
	return out
}

// Correlation returns the rolling Pearson correlation of x and y over a
// trailing window of w rows. Undefined until the window fills; NaN when either
// side is constant within the window. Values are clamped to [-1, 1].
func Correlation(x, y []float64, w int) []Opt {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	out := make([]Opt, n)
	if w <= 0 {
		return out
	}
	for i := w - 1; i < n; i++ {
		xw, yw := x[i-w+1:i+1], y[i-w+1:i+1]
		if !allFinite(xw) || !allFinite(yw) || flat(xw) || flat(yw) {
			out[i] = Some(math.NaN())
			continue
		}
		r := stat.Correlation(xw, yw, nil)
		if !finite(r) {
			out[i] = Some(math.NaN())
			continue
		}
		out[i] = Some(math.Max(-1, math.Min(1, r)))
	}
	return out
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}

// flat reports a window whose values are all identical, which must score as
// zero variance even when the computed std picks up rounding noise.
func flat(v []float64) bool {
	return len(v) == 0 || floats.Max(v) == floats.Min(v)
}
