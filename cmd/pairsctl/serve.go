package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"pairs-systemv1/internal/api"
	"pairs-systemv1/internal/metrics"
	"pairs-systemv1/internal/pairs"
	sqlitestore "pairs-systemv1/internal/store/sqlite"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pair analytics and backtests over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if addr == "" {
				addr = cfg.HTTPAddr
			}

			reader, err := sqlitestore.NewReader(cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("sqlite reader: %w", err)
			}
			defer reader.Close()

			prom := metrics.NewMetrics(nil)
			health := metrics.NewHealthStatus()
			health.CheckSQLite(context.Background(), reader.DB())

			ctx, cancel := signalContext()
			defer cancel()
			health.StartLivenessChecker(ctx, nil, reader.DB(), 10*time.Second)

			metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
			metricsSrv.Start()

			srv := api.NewServer(pairs.NewService(reader, prom), reader, api.Options{
				Addr:     addr,
				Service:  "pairs-api",
				Timeout:  cfg.RequestTimeout,
				Defaults: api.DefaultsFromConfig(cfg),
			})
			srv.Start()

			<-ctx.Done()
			log.Println("[serve] shutting down...")

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := srv.Stop(stopCtx); err != nil {
				log.Printf("[serve] api shutdown: %v", err)
			}
			metricsSrv.Stop(stopCtx)
			log.Println("[serve] stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	return cmd
}
