package agg

import (
	"cmp"
	"context"
	"log"
	"slices"
	"strings"
	"time"

	"pairs-systemv1/internal/model"
)

// barState holds the in-progress bar for one (timeframe, symbol).
type barState struct {
	bucket time.Time
	bar    model.Bar
}

// Aggregator builds OHLCV bars for several timeframes from a tick stream.
// Bars close on event time: a bar is emitted when a tick for a later bucket of
// the same symbol arrives, when it has been idle past its end plus Grace, or
// on shutdown. Ticks for an already-closed bucket are dropped as late.
//
// An Aggregator is owned by the goroutine calling Run (or Process/Flush).
type Aggregator struct {
	timeframes []model.Timeframe
	states     map[string]*barState // key = "tf:symbol"
	closed     map[string]time.Time // newest emitted bucket per key

	// Grace is how long past a bucket's end the idle sweep waits before
	// closing it. Zero disables the idle sweep.
	Grace time.Duration
	now   func() time.Time

	// Metrics hooks (optional, set externally)
	OnLateTick func()
	OnBar      func(tf model.Timeframe)
}

// New creates an Aggregator for the given timeframes (all supported ones if empty).
func New(tfs ...model.Timeframe) *Aggregator {
	if len(tfs) == 0 {
		tfs = model.Timeframes()
	}
	return &Aggregator{
		timeframes: tfs,
		states:     make(map[string]*barState),
		closed:     make(map[string]time.Time),
		Grace:      2 * time.Second,
		now:        time.Now,
	}
}

// Run consumes ticks and sends closed bars to barCh until ctx is cancelled or
// tickCh is closed, then flushes every open bar.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.Tick, barCh chan<- model.Bar) {
	var sweep <-chan time.Time
	if a.Grace > 0 {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			a.send(a.Flush(), barCh)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.send(a.Flush(), barCh)
				return
			}
			a.send(a.Process(tick), barCh)

		case <-sweep:
			a.send(a.FlushIdle(), barCh)
		}
	}
}

// Process folds one tick into every timeframe and returns the bars it closed.
func (a *Aggregator) Process(tick model.Tick) []model.Bar {
	symbol := model.NormalizeSymbol(tick.Symbol)
	var out []model.Bar
	late := false

	for _, tf := range a.timeframes {
		bucket := tf.Bucket(tick.TS)
		key := string(tf) + ":" + symbol

		if last, ok := a.closed[key]; ok && !bucket.After(last) {
			late = true
			continue
		}

		state, exists := a.states[key]
		if exists && bucket.Before(state.bucket) {
			late = true
			continue
		}
		if exists && bucket.After(state.bucket) {
			out = append(out, a.close(key, state))
			exists = false
		}

		if !exists {
			a.states[key] = &barState{
				bucket: bucket,
				bar: model.Bar{
					Symbol:    symbol,
					Timeframe: tf,
					TS:        bucket,
					Open:      tick.Price,
					High:      tick.Price,
					Low:       tick.Price,
					Close:     tick.Price,
					Volume:    tick.Size,
					Count:     1,
				},
			}
			continue
		}

		b := &state.bar
		if tick.Price > b.High {
			b.High = tick.Price
		}
		if tick.Price < b.Low {
			b.Low = tick.Price
		}
		b.Close = tick.Price
		b.Volume += tick.Size
		b.Count++
	}

	if late && a.OnLateTick != nil {
		a.OnLateTick()
	}
	return out
}

// FlushIdle closes bars whose bucket ended more than Grace ago.
func (a *Aggregator) FlushIdle() []model.Bar {
	now := a.now()
	var out []model.Bar
	for key, state := range a.states {
		end := state.bucket.Add(state.bar.Timeframe.Duration())
		if now.Sub(end) > a.Grace {
			out = append(out, a.close(key, state))
		}
	}
	sortBars(out)
	return out
}

// Flush closes every open bar.
func (a *Aggregator) Flush() []model.Bar {
	out := make([]model.Bar, 0, len(a.states))
	for key, state := range a.states {
		out = append(out, a.close(key, state))
	}
	sortBars(out)
	return out
}

// Open returns the number of bars currently forming.
func (a *Aggregator) Open() int { return len(a.states) }

func (a *Aggregator) close(key string, state *barState) model.Bar {
	delete(a.states, key)
	a.closed[key] = state.bucket
	if a.OnBar != nil {
		a.OnBar(state.bar.Timeframe)
	}
	return state.bar
}

// send emits bars to barCh. Non-blocking to avoid stalling ingest.
func (a *Aggregator) send(bars []model.Bar, barCh chan<- model.Bar) {
	for _, b := range bars {
		select {
		case barCh <- b:
		default:
			log.Printf("[agg] barCh full, dropping bar %s ts=%v", b.Key(), b.TS)
		}
	}
}

// sortBars orders bars by (TS, timeframe, symbol) so map iteration never leaks
// into output order.
func sortBars(bars []model.Bar) {
	slices.SortFunc(bars, func(a, b model.Bar) int {
		if c := a.TS.Compare(b.TS); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Timeframe.Duration(), b.Timeframe.Duration()); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})
}
