package pairs

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"pairs-systemv1/internal/analytics"
	"pairs-systemv1/internal/notification"
)

// Watcher periodically analyzes a set of pairs and raises an alert when the
// latest z-score breaches ±entry while the spread tests as mean-reverting.
// Each pair alerts at most once per bar.
type Watcher struct {
	svc      *Service
	notifier notification.Notifier
	requests []Request
	entry    float64

	mu        sync.Mutex
	lastAlert map[string]time.Time // pair → bar TS of the last alert

	// OnAlert is called after each delivery attempt (optional, for metrics).
	OnAlert func(sent bool)
}

// NewWatcher creates a watcher over requests with the given entry threshold.
func NewWatcher(svc *Service, n notification.Notifier, requests []Request, entry float64) *Watcher {
	return &Watcher{
		svc:       svc,
		notifier:  n,
		requests:  requests,
		entry:     entry,
		lastAlert: make(map[string]time.Time),
	}
}

// Check analyzes every pair once. Per-pair failures are logged and the first
// one is returned after all pairs were tried.
func (w *Watcher) Check(ctx context.Context) error {
	var firstErr error
	for _, req := range w.requests {
		b, err := w.svc.Analyze(ctx, req)
		if err != nil {
			log.Printf("[watch] %s/%s: %v", req.SymbolX, req.SymbolY, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		alert, ok := Evaluate(b, w.entry)
		if !ok || !w.claim(alert.Pair, alert.BarTS) {
			continue
		}

		err = w.notifier.Send(ctx, alert)
		if w.OnAlert != nil {
			w.OnAlert(err == nil)
		}
		if err != nil {
			log.Printf("[watch] alert delivery failed for %s: %v", alert.Pair, err)
			w.release(alert.Pair, alert.BarTS)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// claim records bar as alerted for pair; false if it already was.
func (w *Watcher) claim(pair string, bar time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.lastAlert[pair]; ok && !bar.After(last) {
		return false
	}
	w.lastAlert[pair] = bar
	return true
}

func (w *Watcher) release(pair string, bar time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastAlert[pair].Equal(bar) {
		delete(w.lastAlert, pair)
	}
}

// Evaluate builds an alert from the latest row of b, if it warrants one.
func Evaluate(b *Bundle, entry float64) (notification.Alert, bool) {
	adf, ok := b.ADF.(analytics.ADFOK)
	if !ok || !adf.Stationary(analytics.StationaryAlpha) {
		return notification.Alert{}, false
	}
	row, ok := b.Latest()
	if !ok || math.Abs(row.ZScore.V) <= entry {
		return notification.Alert{}, false
	}

	side := "short spread"
	if row.ZScore.V < 0 {
		side = "long spread"
	}
	pair := b.SymbolX + "/" + b.SymbolY
	msg := fmt.Sprintf("z-score %.2f beyond ±%.2f on %s bars, ADF p=%.4f", row.ZScore.V, entry, b.Timeframe, adf.PValue)
	if ratio, ok := b.HedgeRatio(); ok {
		msg += fmt.Sprintf(", hedge %.4f", ratio)
	}
	return notification.Alert{
		Level:   notification.AlertWarning,
		Title:   fmt.Sprintf("%s %s signal", pair, side),
		Message: msg,
		Pair:    pair,
		BarTS:   row.TS,
		ZScore:  row.ZScore.V,
		PValue:  adf.PValue,
	}, true
}
