package pairs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pairs-systemv1/internal/analytics"
	"pairs-systemv1/internal/logger"
	"pairs-systemv1/internal/metrics"
	"pairs-systemv1/internal/model"
)

// Service loads bars for both legs and computes the pair bundle.
type Service struct {
	bars    model.BarReader
	metrics *metrics.Metrics // optional
}

// NewService creates a pair analytics service. m may be nil.
func NewService(bars model.BarReader, m *metrics.Metrics) *Service {
	return &Service{bars: bars, metrics: m}
}

// Analyze validates req, reads both legs and runs Compute. Errors are either
// ErrInvalidRequest or wrapped store failures; analytic outcomes live in the bundle.
func (s *Service) Analyze(ctx context.Context, req Request) (*Bundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	barsX, err := s.bars.ReadBars(ctx, req.SymbolX, req.Timeframe, req.Since)
	if err != nil {
		return nil, fmt.Errorf("pairs: read %s: %w", req.SymbolX, err)
	}
	barsY, err := s.bars.ReadBars(ctx, req.SymbolY, req.Timeframe, req.Since)
	if err != nil {
		return nil, fmt.Errorf("pairs: read %s: %w", req.SymbolY, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := Compute(model.Closes(barsX), model.Closes(barsY), req)
	s.observe(b, time.Since(start))

	slog.Debug("pair analysis computed",
		append(logger.LogWithTrace(ctx),
			slog.String("x", req.SymbolX),
			slog.String("y", req.SymbolY),
			slog.String("tf", string(req.Timeframe)),
			slog.Int("n_obs", b.NObs),
			slog.String("hedge", analytics.HedgeStatus(b.Hedge)),
			slog.String("adf", analytics.ADFStatus(b.ADF)),
			slog.String("regime", b.Regime()),
		)...)
	return b, nil
}

func (s *Service) observe(b *Bundle, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.AnalyticsDur.Observe(d.Seconds())
	s.metrics.HedgeResults.WithLabelValues(analytics.HedgeStatus(b.Hedge)).Inc()
	s.metrics.ADFResults.WithLabelValues(analytics.ADFStatus(b.ADF)).Inc()
	if b.Backtest != nil {
		s.metrics.BacktestsTotal.Inc()
	}
}
