package api

import (
	"math"
	"time"

	"pairs-systemv1/internal/analytics"
	"pairs-systemv1/internal/backtest"
	"pairs-systemv1/internal/pairs"
)

// HealthResponse is the body of GET / and GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HedgeOut reports the hedge stage. HedgeRatio is null unless Status is "ok".
type HedgeOut struct {
	Status      string   `json:"status"`
	HedgeRatio  *float64 `json:"hedge_ratio"`
	NObs        int      `json:"n_obs"`
	MinRequired int      `json:"min_required,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// ADFOut reports the stationarity stage. Numeric fields are null when the
// test did not run or was degenerate.
type ADFOut struct {
	Status         string             `json:"status"`
	ADFStat        *float64           `json:"adf_stat"`
	PValue         *float64           `json:"p_value"`
	UsedLag        *int               `json:"used_lag,omitempty"`
	NObs           int                `json:"n_obs"`
	MinRequired    int                `json:"min_required,omitempty"`
	CriticalValues map[string]float64 `json:"critical_values,omitempty"`
}

// RowOut is one aligned bar. Undefined rolling values render as null.
type RowOut struct {
	BarTS       time.Time `json:"bar_ts"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Spread      *float64  `json:"spread"`
	ZScore      *float64  `json:"zscore"`
	RollingCorr *float64  `json:"rolling_corr"`
}

// AnalyticsResponse is the body of GET /analytics/pairs.
type AnalyticsResponse struct {
	SymbolX   string   `json:"symbol_x"`
	SymbolY   string   `json:"symbol_y"`
	Timeframe string   `json:"timeframe"`
	Window    int      `json:"window"`
	NObs      int      `json:"n_obs"`
	Hedge     HedgeOut `json:"hedge_ratio"`
	ADF       ADFOut   `json:"adf"`
	Regime    string   `json:"regime"`
	Data      []RowOut `json:"data"`
}

// BacktestOut reports the simulation; everything but Status is omitted when skipped.
type BacktestOut struct {
	Status  string            `json:"status"`
	Params  *backtest.Params  `json:"params,omitempty"`
	Summary *backtest.Summary `json:"summary,omitempty"`
	Rows    []backtest.Row    `json:"rows,omitempty"`
}

// BacktestResponse is the body of GET /backtest/pairs.
type BacktestResponse struct {
	AnalyticsResponse
	Backtest BacktestOut `json:"backtest"`
}

func toAnalyticsResponse(b *pairs.Bundle) AnalyticsResponse {
	rows := make([]RowOut, len(b.Rows))
	for i, r := range b.Rows {
		rows[i] = RowOut{
			BarTS:       r.TS,
			X:           r.X,
			Y:           r.Y,
			Spread:      opt(r.Spread),
			ZScore:      opt(r.ZScore),
			RollingCorr: opt(r.Correlation),
		}
	}
	return AnalyticsResponse{
		SymbolX:   b.SymbolX,
		SymbolY:   b.SymbolY,
		Timeframe: string(b.Timeframe),
		Window:    b.Window,
		NObs:      b.NObs,
		Hedge:     toHedgeOut(b.Hedge),
		ADF:       toADFOut(b.ADF),
		Regime:    b.Regime(),
		Data:      rows,
	}
}

func toBacktestResponse(b *pairs.Bundle) BacktestResponse {
	out := BacktestResponse{AnalyticsResponse: toAnalyticsResponse(b)}
	if b.Backtest == nil {
		out.Backtest = BacktestOut{Status: analytics.StatusSkipped}
		return out
	}
	res := b.Backtest
	out.Backtest = BacktestOut{
		Status:  analytics.StatusOK,
		Params:  &res.Params,
		Summary: &res.Summary,
		Rows:    res.Rows,
	}
	return out
}

func toHedgeOut(r analytics.HedgeResult) HedgeOut {
	out := HedgeOut{Status: analytics.HedgeStatus(r)}
	switch h := r.(type) {
	case analytics.HedgeOK:
		out.HedgeRatio = num(h.Ratio)
		out.NObs = h.NObs
	case analytics.HedgeInsufficientData:
		out.NObs = h.NObs
		out.MinRequired = h.MinRequired
	case analytics.HedgeRegressionFailed:
		out.NObs = h.NObs
		out.Reason = h.Reason
	}
	return out
}

func toADFOut(r analytics.ADFResult) ADFOut {
	out := ADFOut{Status: analytics.ADFStatus(r)}
	switch a := r.(type) {
	case analytics.ADFOK:
		lag := a.UsedLag
		out.ADFStat = num(a.Statistic)
		out.PValue = num(a.PValue)
		out.UsedLag = &lag
		out.NObs = a.NObs
		out.CriticalValues = a.CriticalValues
	case analytics.ADFInsufficientData:
		out.NObs = a.NObs
		out.MinRequired = a.MinRequired
	}
	return out
}

// num maps non-finite values to JSON null.
func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func opt(o analytics.Opt) *float64 {
	if !o.Valid {
		return nil
	}
	return num(o.V)
}
