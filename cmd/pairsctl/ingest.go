package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pairs-systemv1/internal/marketdata/replay"
	"pairs-systemv1/internal/marketdata/ws"
	"pairs-systemv1/internal/metrics"
	"pairs-systemv1/internal/model"
)

func (a *app) ingestCmd() *cobra.Command {
	var recordPath string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Stream live trades into SQLite (and Redis bars when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			symbols := cfg.SymbolList()
			log.Printf("[ingest] starting, symbols=%v", symbols)

			prom := metrics.NewMetrics(nil)
			health := metrics.NewHealthStatus()
			metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
			metricsSrv.Start()

			ctx, cancel := signalContext()
			defer cancel()

			p, err := newPipeline(cfg, prom, health, false, recordPath != "")
			if err != nil {
				return err
			}

			ingest, err := ws.New(ws.Config{BaseURL: cfg.BinanceWSURL, Symbols: symbols})
			if err != nil {
				return fmt.Errorf("ws init: %w", err)
			}
			ingest.OnReconnect = func() { prom.WSReconnects.Inc() }
			ingest.OnConnected = health.SetWSConnected
			ingest.OnTick = func(t model.Tick) {
				prom.TicksTotal.Inc()
				health.SetLastTickTime(t.TS)
			}
			ingest.OnDrop = func() { prom.DroppedTicks.Inc() }

			tickCh := make(chan model.Tick, 10000)
			p.start(ctx, tickCh)

			if recordPath != "" {
				f, err := os.OpenFile(recordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					cancel()
					close(tickCh)
					p.wait()
					return fmt.Errorf("open record file: %w", err)
				}
				defer f.Close()
				rec := replay.NewRecorder(f)
				p.goRun(func() { rec.Run(ctx, p.recorded()) })
				log.Printf("[ingest] recording ticks to %s", recordPath)
			}

			log.Println("[ingest] pipeline ready")
			err = ingest.Start(ctx, tickCh)
			close(tickCh)

			log.Println("[ingest] shutting down...")
			p.wait()

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			metricsSrv.Stop(stopCtx)
			log.Println("[ingest] stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&recordPath, "record", "", "append every tick to this NDJSON file for later replay")
	return cmd
}
