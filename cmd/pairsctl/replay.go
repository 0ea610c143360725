package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"pairs-systemv1/internal/marketdata/replay"
	"pairs-systemv1/internal/metrics"
	"pairs-systemv1/internal/model"
)

func (a *app) replayCmd() *cobra.Command {
	var (
		speed  float64
		resume bool
	)

	cmd := &cobra.Command{
		Use:   "replay <file.ndjson>",
		Short: "Load recorded NDJSON ticks into SQLite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if !cmd.Flags().Changed("speed") {
				speed = cfg.ReplaySpeed
			}

			r, err := replay.New(args[0], speed)
			if err != nil {
				return err
			}

			prom := metrics.NewMetrics(nil)
			health := metrics.NewHealthStatus()

			ctx, cancel := signalContext()
			defer cancel()

			p, err := newPipeline(cfg, prom, health, true, false)
			if err != nil {
				return err
			}

			skipped := 0
			r.OnTick = func(model.Tick) { prom.TicksTotal.Inc() }
			r.OnSkip = func(int, error) {
				skipped++
				prom.ReplaySkips.Inc()
			}

			tickCh := make(chan model.Tick, pipelineBuffer)
			p.start(ctx, tickCh)

			// With --resume the reader feeds a filter that drops ticks already stored.
			readCh := tickCh
			var filtered chan int
			if resume {
				readCh = make(chan model.Tick, pipelineBuffer)
				filtered = make(chan int, 1)
				src := readCh
				go func() {
					dup, err := afterStored(ctx, p.writer, src, tickCh)
					if err != nil {
						log.Printf("[replay] resume: %v", err)
					}
					close(tickCh)
					filtered <- dup
				}()
			}

			start := time.Now()
			n, err := r.Run(ctx, readCh)
			close(readCh)
			dup := 0
			if filtered != nil {
				dup = <-filtered
			}
			p.wait()

			log.Printf("[replay] %s: %d ticks read (%d already stored), %d lines skipped in %s",
				args[0], n, dup, skipped, time.Since(start).Round(time.Millisecond))
			if err != nil {
				return fmt.Errorf("replay %s: %w", args[0], err)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&speed, "speed", 0, "playback rate: 1 = real time, 0 = as fast as possible (default TICK_REPLAY_SPEED)")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip ticks at or before the newest stored tick of their symbol")
	return cmd
}

// lastStamper reports the newest stored tick time per symbol.
type lastStamper interface {
	LastTimestamp(ctx context.Context, symbol string) (time.Time, error)
}

// afterStored forwards ticks strictly newer than what store already holds for
// their symbol and returns how many it dropped. It drains in even after a
// lookup error so the sender never blocks; out is left open.
func afterStored(ctx context.Context, store lastStamper, in <-chan model.Tick, out chan<- model.Tick) (int, error) {
	last := make(map[string]time.Time)
	dropped := 0
	var firstErr error
	for t := range in {
		sym := model.NormalizeSymbol(t.Symbol)
		ts, ok := last[sym]
		if !ok {
			var err error
			ts, err = store.LastTimestamp(ctx, sym)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("last timestamp %s: %w", sym, err)
			}
			last[sym] = ts
		}
		if !ts.IsZero() && !t.TS.After(ts) {
			dropped++
			continue
		}
		select {
		case out <- t:
		case <-ctx.Done():
			for range in {
			}
			return dropped, firstErr
		}
	}
	return dropped, firstErr
}
