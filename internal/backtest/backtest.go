// Package backtest simulates a threshold long/short strategy on a pair spread.
//
// The simulator is a left fold over bars in timestamp order. Each bar's
// position depends on the previous bar's position and the current z-score,
// so bars are never processed out of order or in parallel.
package backtest

import (
	"math"
	"time"
)

// Params configures the signal thresholds and position scale.
type Params struct {
	EntryThreshold float64 `json:"entry_threshold"` // enter when |z| exceeds this
	ExitThreshold  float64 `json:"exit_threshold"`  // exit when |z| falls to or below this
	PositionSize   float64 `json:"position_size"`   // currency units per unit position
}

// DefaultParams mirrors the usual ±2σ entry, mean-crossing exit.
func DefaultParams() Params {
	return Params{EntryThreshold: 2.0, ExitThreshold: 0.0, PositionSize: 1.0}
}

// Bar is one joined (spread, z-score) observation.
type Bar struct {
	TS     time.Time
	Spread float64
	ZScore float64
}

// Position is the spread position: short, flat or long.
type Position int

const (
	Short Position = -1
	Flat  Position = 0
	Long  Position = 1
)

// Action describes what the state machine did on a bar.
type Action string

const (
	ActionEnterLong  Action = "ENTER_LONG"
	ActionEnterShort Action = "ENTER_SHORT"
	ActionExit       Action = "EXIT"
	ActionHold       Action = "HOLD"
	ActionNone       Action = "NONE"
)

// Row is the per-bar output of the simulation.
// PnL is the unscaled spread move earned by the position; CumPnL is the
// running sum scaled by PositionSize.
type Row struct {
	TS       time.Time `json:"ts"`
	Spread   float64   `json:"spread"`
	ZScore   float64   `json:"zscore"`
	Position Position  `json:"position"`
	Action   Action    `json:"action"`
	PnL      float64   `json:"pnl"`
	CumPnL   float64   `json:"cum_pnl"`
}

// Summary holds the run-level metrics.
type Summary struct {
	TotalPnL    float64 `json:"total_pnl"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Sharpe      float64 `json:"sharpe"`
	WinRate     float64 `json:"win_rate"` // percent
	TradeCount  int     `json:"trade_count"`
	Bars        int     `json:"bars"`
}

// Result is a completed backtest.
type Result struct {
	Params  Params  `json:"params"`
	Rows    []Row   `json:"rows"`
	Summary Summary `json:"summary"`
}

// Next applies the transition rule for one bar.
// Flat positions enter against the z-score once it breaches ±entry; open
// positions exit when |z| ≤ exit and otherwise hold without re-checking entry.
func Next(pos Position, z float64, p Params) (Position, Action) {
	if pos == Flat {
		switch {
		case z > p.EntryThreshold:
			return Short, ActionEnterShort
		case z < -p.EntryThreshold:
			return Long, ActionEnterLong
		default:
			return Flat, ActionNone
		}
	}
	if math.Abs(z) <= p.ExitThreshold {
		return Flat, ActionExit
	}
	return pos, ActionHold
}

// acc is the fold accumulator.
type acc struct {
	position   Position
	prevSpread float64
	cumPnL     float64
	runningMax float64
	maxDD      float64
}

// step folds one bar (i ≥ 1) into the accumulator. The position established
// on this bar earns this bar's spread move.
func step(a acc, b Bar, p Params) (acc, Row) {
	pos, action := Next(a.position, b.ZScore, p)
	pnl := float64(pos) * (b.Spread - a.prevSpread)

	a.position = pos
	a.prevSpread = b.Spread
	a.cumPnL += pnl * p.PositionSize
	if a.cumPnL > a.runningMax {
		a.runningMax = a.cumPnL
	}
	if dd := a.runningMax - a.cumPnL; dd > a.maxDD {
		a.maxDD = dd
	}

	return a, Row{
		TS:       b.TS,
		Spread:   b.Spread,
		ZScore:   b.ZScore,
		Position: pos,
		Action:   action,
		PnL:      pnl,
		CumPnL:   a.cumPnL,
	}
}

// Run simulates the strategy over bars, which must be in ascending time order
// with finite spread and z-score. Bar 0 opens flat and earns nothing.
func Run(bars []Bar, p Params) Result {
	res := Result{Params: p, Rows: make([]Row, 0, len(bars))}
	if len(bars) == 0 {
		return res
	}

	first := bars[0]
	res.Rows = append(res.Rows, Row{
		TS:       first.TS,
		Spread:   first.Spread,
		ZScore:   first.ZScore,
		Position: Flat,
		Action:   ActionNone,
	})

	a := acc{prevSpread: first.Spread}
	for _, b := range bars[1:] {
		var row Row
		a, row = step(a, b, p)
		res.Rows = append(res.Rows, row)
	}

	positions := make([]Position, len(res.Rows))
	pnl := make([]float64, 0, len(res.Rows)-1)
	for i, r := range res.Rows {
		positions[i] = r.Position
		if i > 0 {
			pnl = append(pnl, r.PnL)
		}
	}

	trades := CountTrades(positions)
	res.Summary = Summary{
		TotalPnL:    a.cumPnL,
		MaxDrawdown: a.maxDD,
		Sharpe:      SharpeRatio(pnl),
		WinRate:     WinRate(pnl, trades),
		TradeCount:  trades,
		Bars:        len(bars),
	}
	return res
}
