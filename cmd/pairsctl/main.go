// Command pairsctl runs the pair analytics system: trade ingest, NDJSON
// replay, the HTTP API, offline backtests and the scheduled regime watch.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pairs-systemv1/config"
	"pairs-systemv1/internal/logger"
)

// app carries the flags and config shared by every subcommand.
type app struct {
	envFile  string
	logLevel string
	cfg      *config.Config
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:          "pairsctl",
		Short:        "Statistical-arbitrage pair analytics",
		Long:         `Ingests trades into SQLite, serves hedge ratio, spread, z-score, correlation and ADF analytics over HTTP, and backtests a mean-reversion strategy on the spread.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.cfg = config.Load(a.envFile)
			level := a.cfg.LogLevel
			if a.logLevel != "" {
				level = a.logLevel
			}
			logger.Init("pairsctl-"+cmd.Name(), logger.ParseLevel(level))
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		a.serveCmd(),
		a.ingestCmd(),
		a.replayCmd(),
		a.backtestCmd(),
		a.watchCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
