package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the analytics service and the ingest pipeline from
// concrete storage implementations (SQLite, Redis).

// TickWriter persists raw ticks.
type TickWriter interface {
	// Run reads ticks from tickCh and writes them in batches.
	// Blocks until ctx is cancelled or tickCh is closed.
	Run(ctx context.Context, tickCh <-chan Tick)

	// WriteTicks writes a batch synchronously.
	WriteTicks(ctx context.Context, ticks []Tick) error

	// Close releases underlying resources.
	Close() error
}

// BarReader serves OHLCV bars resampled from stored ticks.
type BarReader interface {
	// ReadBars returns bars for symbol in ascending bucket order.
	// A zero since reads the full history.
	ReadBars(ctx context.Context, symbol string, tf Timeframe, since time.Time) ([]Bar, error)
}

// SymbolReader lists the symbols that have stored ticks.
type SymbolReader interface {
	ReadSymbols(ctx context.Context) ([]string, error)
}

// BarPublisher mirrors closed bars to a fan-out store (e.g. Redis Streams).
type BarPublisher interface {
	PublishBar(ctx context.Context, bar Bar) error
	Close() error
}
