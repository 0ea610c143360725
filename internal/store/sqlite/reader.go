package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"pairs-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to stored ticks, resampled into bars.
type Reader struct {
	db *sql.DB
}

var (
	_ model.BarReader    = (*Reader)(nil)
	_ model.SymbolReader = (*Reader)(nil)
)

// NewReader opens a SQLite connection for reading. The schema is created if
// missing so a reader can start before the first tick is written.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// barsQuery buckets ticks by bucket = ts_ms - ts_ms % tf_ms. Open and close are
// the first and last ticks of the bucket by (ts_ms, id).
const barsQuery = `
	WITH bucketed AS (
		SELECT ts_ms - (ts_ms % ?) AS bucket, ts_ms, id, price, size
		FROM ticks
		WHERE symbol = ? AND ts_ms >= ?
	),
	ranked AS (
		SELECT bucket, price, size,
			ROW_NUMBER() OVER (PARTITION BY bucket ORDER BY ts_ms ASC,  id ASC)  AS rn_first,
			ROW_NUMBER() OVER (PARTITION BY bucket ORDER BY ts_ms DESC, id DESC) AS rn_last
		FROM bucketed
	)
	SELECT bucket,
		MAX(CASE WHEN rn_first = 1 THEN price END) AS open,
		MAX(price)  AS high,
		MIN(price)  AS low,
		MAX(CASE WHEN rn_last = 1 THEN price END)  AS close,
		SUM(size)   AS volume,
		COUNT(*)    AS n
	FROM ranked
	GROUP BY bucket
	ORDER BY bucket ASC
`

// ReadBars resamples stored ticks for symbol into tf bars, ascending by bucket.
// A zero since reads the full history.
func (r *Reader) ReadBars(ctx context.Context, symbol string, tf model.Timeframe, since time.Time) ([]model.Bar, error) {
	if _, err := model.ParseTimeframe(string(tf)); err != nil {
		return nil, err
	}
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}
	symbol = model.NormalizeSymbol(symbol)

	rows, err := r.db.QueryContext(ctx, barsQuery, tf.Millis(), symbol, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		b := model.Bar{Symbol: symbol, Timeframe: tf}
		var bucket int64
		if err := rows.Scan(&bucket, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Count); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.UnixMilli(bucket).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite iterate bars: %w", err)
	}
	return bars, nil
}

// ReadSymbols lists the distinct stored symbols in ascending order.
func (r *Reader) ReadSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM ticks ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
