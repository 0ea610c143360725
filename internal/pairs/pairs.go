// Package pairs composes the analytics core and the backtest simulator into
// a single pair-analysis bundle, and serves it from a bar store.
package pairs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"pairs-systemv1/internal/analytics"
	"pairs-systemv1/internal/backtest"
	"pairs-systemv1/internal/model"
)

// ErrInvalidRequest wraps every Request validation failure.
var ErrInvalidRequest = errors.New("invalid pair request")

// Regime labels derived from the ADF p-value.
const (
	RegimeMeanReverting = "mean_reverting"
	RegimeNonStationary = "non_stationary"
	RegimeUnknown       = "unknown"
)

// minHedgeSamples keeps one residual degree of freedom for the slope fit.
const minHedgeSamples = 3

// Request describes one pair analysis.
type Request struct {
	SymbolX         string
	SymbolY         string
	Timeframe       model.Timeframe
	Window          int
	HedgeMinSamples int // 0 = analytics.DefaultHedgeMinSamples
	ADFMinSamples   int // 0 = analytics.DefaultADFMinSamples
	Since           time.Time
	Backtest        *backtest.Params // nil = no backtest
}

// Validate checks the request and normalizes the symbols.
func (r *Request) Validate() error {
	r.SymbolX = model.NormalizeSymbol(r.SymbolX)
	r.SymbolY = model.NormalizeSymbol(r.SymbolY)

	if r.SymbolX == "" || r.SymbolY == "" {
		return fmt.Errorf("%w: symbol_x and symbol_y are required", ErrInvalidRequest)
	}
	if r.SymbolX == r.SymbolY {
		return fmt.Errorf("%w: symbol_x and symbol_y must differ", ErrInvalidRequest)
	}
	if _, err := model.ParseTimeframe(string(r.Timeframe)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.Window < 2 {
		return fmt.Errorf("%w: window must be >= 2, got %d", ErrInvalidRequest, r.Window)
	}
	if r.HedgeMinSamples < 0 || (r.HedgeMinSamples > 0 && r.HedgeMinSamples < minHedgeSamples) {
		return fmt.Errorf("%w: hedge_min_samples must be >= %d, got %d", ErrInvalidRequest, minHedgeSamples, r.HedgeMinSamples)
	}
	if r.ADFMinSamples < 0 {
		return fmt.Errorf("%w: adf_min_samples must be >= 1, got %d", ErrInvalidRequest, r.ADFMinSamples)
	}
	if p := r.Backtest; p != nil {
		if !isFinite(p.EntryThreshold) || !isFinite(p.ExitThreshold) || !isFinite(p.PositionSize) {
			return fmt.Errorf("%w: backtest parameters must be finite", ErrInvalidRequest)
		}
		if p.EntryThreshold < 0 || p.ExitThreshold < 0 {
			return fmt.Errorf("%w: thresholds must be >= 0", ErrInvalidRequest)
		}
		if p.ExitThreshold > p.EntryThreshold {
			return fmt.Errorf("%w: exit threshold %.4g exceeds entry threshold %.4g", ErrInvalidRequest, p.ExitThreshold, p.EntryThreshold)
		}
		if p.PositionSize <= 0 {
			return fmt.Errorf("%w: position_size must be > 0", ErrInvalidRequest)
		}
	}
	return nil
}

// Row is one aligned timestamp with its derived series.
type Row struct {
	TS          time.Time
	X, Y        float64
	Spread      analytics.Opt
	ZScore      analytics.Opt
	Correlation analytics.Opt
}

// Complete reports whether spread, z-score and correlation are all defined.
func (r Row) Complete() bool {
	return r.Spread.Defined() && r.ZScore.Defined() && r.Correlation.Defined()
}

// Bundle is the full output of one pair analysis. ADF and Backtest are nil
// when the stage was skipped.
type Bundle struct {
	SymbolX   string
	SymbolY   string
	Timeframe model.Timeframe
	Window    int
	NObs      int // aligned rows
	Hedge     analytics.HedgeResult
	ADF       analytics.ADFResult
	Rows      []Row
	Backtest  *backtest.Result
}

// HedgeRatio returns the fitted ratio when the hedge stage succeeded.
func (b *Bundle) HedgeRatio() (float64, bool) {
	ok, isOK := b.Hedge.(analytics.HedgeOK)
	return ok.Ratio, isOK
}

// CompleteRows returns the rows where every derived series is defined.
func (b *Bundle) CompleteRows() []Row {
	out := make([]Row, 0, len(b.Rows))
	for _, r := range b.Rows {
		if r.Complete() {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the last row with a defined z-score.
func (b *Bundle) Latest() (Row, bool) {
	for i := len(b.Rows) - 1; i >= 0; i-- {
		if b.Rows[i].ZScore.Defined() {
			return b.Rows[i], true
		}
	}
	return Row{}, false
}

// Regime classifies the spread by the ADF p-value at analytics.StationaryAlpha.
func (b *Bundle) Regime() string {
	adf, ok := b.ADF.(analytics.ADFOK)
	if !ok || math.IsNaN(adf.PValue) {
		return RegimeUnknown
	}
	if adf.Stationary(analytics.StationaryAlpha) {
		return RegimeMeanReverting
	}
	return RegimeNonStationary
}

// Compute runs the pipeline over two close-price series. The request is
// assumed valid. Correlation depends only on prices; spread, z-score, ADF and
// backtest are skipped when the hedge is not OK.
func Compute(x, y []model.PricePoint, req Request) *Bundle {
	a := analytics.Align(x, y)

	b := &Bundle{
		SymbolX:   req.SymbolX,
		SymbolY:   req.SymbolY,
		Timeframe: req.Timeframe,
		Window:    req.Window,
		NObs:      a.Len(),
		Rows:      make([]Row, a.Len()),
	}
	for i := range b.Rows {
		b.Rows[i] = Row{TS: a.TS[i], X: a.X[i], Y: a.Y[i]}
	}

	corr := analytics.Correlation(a.X, a.Y, req.Window)
	for i := range b.Rows {
		b.Rows[i].Correlation = corr[i]
	}

	b.Hedge = analytics.EstimateHedge(a, req.HedgeMinSamples)
	ratio, ok := b.HedgeRatio()
	if !ok {
		return b
	}

	spread := analytics.Spread(a, ratio)
	z := analytics.ZScore(spread, req.Window)
	for i := range b.Rows {
		b.Rows[i].Spread = analytics.Some(spread[i])
		b.Rows[i].ZScore = z[i]
	}

	b.ADF = analytics.ADF(spread, req.ADFMinSamples)

	if req.Backtest != nil {
		res := backtest.Run(backtestBars(b.Rows), *req.Backtest)
		b.Backtest = &res
	}
	return b
}

// backtestBars keeps only complete rows: spread, z-score and correlation
// all defined.
func backtestBars(rows []Row) []backtest.Bar {
	bars := make([]backtest.Bar, 0, len(rows))
	for _, r := range rows {
		if !r.Complete() {
			continue
		}
		bars = append(bars, backtest.Bar{TS: r.TS, Spread: r.Spread.V, ZScore: r.ZScore.V})
	}
	return bars
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
