// Package analytics implements the pair analytics core: series alignment,
// OLS hedge-ratio estimation, spread / rolling z-score / rolling correlation,
// and the augmented Dickey-Fuller stationarity test.
//
// Every function here is pure and synchronous. Outcomes that callers must
// branch on (insufficient data, degenerate regressions) are modelled as closed
// result types rather than errors; numeric degeneracy inside a rolling window
// is reported as NaN at that index.
package analytics

import "math"

// Opt is a per-index value that may be undefined, e.g. a rolling statistic
// whose trailing window is not yet full. Valid values may still be NaN when
// the window is numerically degenerate (zero variance).
type Opt struct {
	V     float64
	Valid bool
}

// Some wraps a computed value.
func Some(v float64) Opt { return Opt{V: v, Valid: true} }

// None is the undefined value.
var None = Opt{}

// Defined reports whether the value exists and is finite.
func (o Opt) Defined() bool {
	return o.Valid && !math.IsNaN(o.V) && !math.IsInf(o.V, 0)
}

// Float returns the value, or NaN when undefined.
func (o Opt) Float() float64 {
	if !o.Valid {
		return math.NaN()
	}
	return o.V
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
