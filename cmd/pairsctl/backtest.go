package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pairs-systemv1/internal/analytics"
	"pairs-systemv1/internal/backtest"
	"pairs-systemv1/internal/model"
	"pairs-systemv1/internal/pairs"
	sqlitestore "pairs-systemv1/internal/store/sqlite"
)

func (a *app) backtestCmd() *cobra.Command {
	var (
		timeframe string
		window    int
		since     time.Duration
		params    backtest.Params
		showRows  bool
	)

	cmd := &cobra.Command{
		Use:   "backtest <symbol_x> <symbol_y>",
		Short: "Run pair analytics and the spread backtest on stored ticks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if !flags.Changed("window") {
				window = cfg.ZScoreWindow
			}
			if !flags.Changed("entry") {
				params.EntryThreshold = cfg.EntryThreshold
			}
			if !flags.Changed("exit") {
				params.ExitThreshold = cfg.ExitThreshold
			}
			if !flags.Changed("size") {
				params.PositionSize = cfg.PositionSize
			}

			reader, err := sqlitestore.NewReader(cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("sqlite reader: %w", err)
			}
			defer reader.Close()

			req := pairs.Request{
				SymbolX:         args[0],
				SymbolY:         args[1],
				Timeframe:       model.Timeframe(timeframe),
				Window:          window,
				HedgeMinSamples: cfg.HedgeMinSamples,
				ADFMinSamples:   cfg.ADFMinSamples,
				Backtest:        &params,
			}
			if since > 0 {
				req.Since = time.Now().Add(-since)
			}

			b, err := pairs.NewService(reader, nil).Analyze(context.Background(), req)
			if err != nil {
				return err
			}
			printBundle(cmd.OutOrStdout(), b, showRows)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&timeframe, "timeframe", string(model.TF1m), "bar timeframe (1s, 1m, 5m)")
	f.IntVar(&window, "window", 30, "rolling z-score / correlation window (default ZSCORE_WINDOW)")
	f.DurationVar(&since, "since", 0, "only use bars newer than this, e.g. 6h (0 = full history)")
	f.Float64Var(&params.EntryThreshold, "entry", 2.0, "entry |z| threshold (default ENTRY_THRESHOLD)")
	f.Float64Var(&params.ExitThreshold, "exit", 0.0, "exit |z| threshold (default EXIT_THRESHOLD)")
	f.Float64Var(&params.PositionSize, "size", 1.0, "position size (default POSITION_SIZE)")
	f.BoolVar(&showRows, "rows", false, "print every simulated bar")
	return cmd
}

// printBundle writes a human-readable report of b.
func printBundle(out io.Writer, b *pairs.Bundle, showRows bool) {
	fmt.Fprintf(out, "pair       %s / %s  (%s bars, window %d)\n", b.SymbolX, b.SymbolY, b.Timeframe, b.Window)
	fmt.Fprintf(out, "aligned    %d bars\n", b.NObs)

	switch h := b.Hedge.(type) {
	case analytics.HedgeOK:
		fmt.Fprintf(out, "hedge      %.6f\n", h.Ratio)
	case analytics.HedgeInsufficientData:
		fmt.Fprintf(out, "hedge      insufficient data (%d < %d)\n", h.NObs, h.MinRequired)
	case analytics.HedgeRegressionFailed:
		fmt.Fprintf(out, "hedge      regression failed: %s\n", h.Reason)
	}

	switch r := b.ADF.(type) {
	case analytics.ADFOK:
		fmt.Fprintf(out, "adf        stat %.4f  p %.4f  lag %d  -> %s\n", r.Statistic, r.PValue, r.UsedLag, b.Regime())
	case analytics.ADFInsufficientData:
		fmt.Fprintf(out, "adf        insufficient data (%d < %d)\n", r.NObs, r.MinRequired)
	default:
		fmt.Fprintln(out, "adf        skipped")
	}

	if b.Backtest == nil {
		fmt.Fprintln(out, "backtest   skipped")
		return
	}
	s := b.Backtest.Summary
	fmt.Fprintf(out, "backtest   %d bars  %d trades  pnl %.4f  max dd %.4f  sharpe %.3f  win %.1f%%\n",
		s.Bars, s.TradeCount, s.TotalPnL, s.MaxDrawdown, s.Sharpe, s.WinRate)

	if !showRows {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "bar_ts\tspread\tzscore\tpos\taction\tpnl\tcum_pnl")
	for _, r := range b.Backtest.Rows {
		fmt.Fprintf(tw, "%s\t%.4f\t%.3f\t%d\t%s\t%.4f\t%.4f\n",
			r.TS.Format(time.RFC3339), r.Spread, r.ZScore, r.Position, r.Action, r.PnL, r.CumPnL)
	}
	tw.Flush()
}
