package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"pairs-systemv1/config"
	"pairs-systemv1/internal/logger"
	"pairs-systemv1/internal/metrics"
	"pairs-systemv1/internal/model"
	"pairs-systemv1/internal/notification"
	"pairs-systemv1/internal/pairs"
	sqlitestore "pairs-systemv1/internal/store/sqlite"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		pairList  []string
		timeframe string
		schedule  string
		once      bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically analyze pairs and alert on mean-reversion signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if schedule == "" {
				schedule = cfg.WatchSchedule
			}
			if len(pairList) == 0 {
				pairList = defaultPairs(cfg.SymbolList())
			}
			reqs, err := watchRequests(cfg, pairList, model.Timeframe(timeframe))
			if err != nil {
				return err
			}

			reader, err := sqlitestore.NewReader(cfg.SQLitePath)
			if err != nil {
				return fmt.Errorf("sqlite reader: %w", err)
			}
			defer reader.Close()

			prom := metrics.NewMetrics(nil)
			notifier := notification.FromConfig(cfg.AlertWebhookURL, cfg.TelegramBotToken, cfg.TelegramChatID)
			w := pairs.NewWatcher(pairs.NewService(reader, prom), notifier, reqs, cfg.EntryThreshold)
			w.OnAlert = func(sent bool) {
				result := "sent"
				if !sent {
					result = "failed"
				}
				prom.AlertsTotal.WithLabelValues(result).Inc()
			}

			ctx, cancel := signalContext()
			defer cancel()

			check := func() {
				runCtx := logger.WithTraceID(ctx, logger.NewTraceID())
				if err := w.Check(runCtx); err != nil {
					log.Printf("[watch] check finished with errors: %v", err)
				}
			}

			if once {
				return w.Check(ctx)
			}

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
			if _, err := c.AddFunc(schedule, check); err != nil {
				return fmt.Errorf("watch schedule %q: %w", schedule, err)
			}
			metricsSrv := metrics.NewServer(cfg.MetricsAddr, metrics.NewHealthStatus(), nil)
			metricsSrv.Start()

			c.Start()
			log.Printf("[watch] watching %s on %s bars, schedule %q", strings.Join(pairList, ", "), timeframe, schedule)
			check()

			<-ctx.Done()
			log.Println("[watch] shutting down...")
			<-c.Stop().Done()
			metricsSrv.Stop(context.Background())
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&pairList, "pair", nil, "pair to watch as X/Y, repeatable (default: first two SYMBOLS)")
	f.StringVar(&timeframe, "timeframe", string(model.TF1m), "bar timeframe (1s, 1m, 5m)")
	f.StringVar(&schedule, "schedule", "", "cron spec or @every interval (default WATCH_SCHEDULE)")
	f.BoolVar(&once, "once", false, "run a single check and exit")
	return cmd
}

// defaultPairs pairs the first two configured symbols.
func defaultPairs(symbols []string) []string {
	if len(symbols) < 2 {
		return nil
	}
	return []string{symbols[0] + "/" + symbols[1]}
}

// parsePair splits "X/Y" into its legs.
func parsePair(s string) (string, string, error) {
	x, y, ok := strings.Cut(s, "/")
	x, y = model.NormalizeSymbol(x), model.NormalizeSymbol(y)
	if !ok || x == "" || y == "" {
		return "", "", fmt.Errorf("pair %q: want SYMBOL_X/SYMBOL_Y", s)
	}
	return x, y, nil
}

// watchRequests builds one validated analysis request per pair.
func watchRequests(cfg *config.Config, list []string, tf model.Timeframe) ([]pairs.Request, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("no pairs to watch: pass --pair or set SYMBOLS")
	}
	reqs := make([]pairs.Request, 0, len(list))
	for _, s := range list {
		x, y, err := parsePair(s)
		if err != nil {
			return nil, err
		}
		req := pairs.Request{
			SymbolX:         x,
			SymbolY:         y,
			Timeframe:       tf,
			Window:          cfg.ZScoreWindow,
			HedgeMinSamples: cfg.HedgeMinSamples,
			ADFMinSamples:   cfg.ADFMinSamples,
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("pair %q: %w", s, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
