// Package replay streams recorded ticks from an NDJSON file, reproducing the
// original inter-tick timing at a configurable speed.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"pairs-systemv1/internal/model"

	"github.com/shopspring/decimal"
)

// maxSleep caps the wait between two ticks regardless of the recorded gap.
const maxSleep = 5 * time.Second

// errNoTimestamp marks lines that carry no E, T or ts field.
var errNoTimestamp = errors.New("no timestamp")

// Replayer reads ticks line by line from an NDJSON file.
type Replayer struct {
	path  string
	speed float64
	sleep func(ctx context.Context, d time.Duration) error

	// Optional hooks
	OnTick func(model.Tick)
	OnSkip func(line int, err error)
}

// New creates a Replayer for path. speed controls the playback rate:
// 1.0 = real-time, 10.0 = 10x, 0 = as fast as possible.
// Returns an error if the file does not exist.
func New(path string, speed float64) (*Replayer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("replay: %s is a directory", path)
	}
	if speed < 0 {
		speed = 0
	}
	return &Replayer{path: path, speed: speed, sleep: sleepCtx}, nil
}

// Run emits every parsable tick into outCh in file order, sleeping the scaled
// gap between consecutive event times. Lines without a timestamp, blank lines
// and malformed lines are skipped. Blocks on outCh rather than dropping.
func (r *Replayer) Run(ctx context.Context, outCh chan<- model.Tick) (int, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return 0, fmt.Errorf("replay: open: %w", err)
	}
	defer f.Close()

	log.Printf("[replay] replaying %s, speed=%.1fx", r.path, r.speed)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var prevTS time.Time
	emitted, lineNo := 0, 0

	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		tick, err := ParseLine(line)
		if err != nil {
			if r.OnSkip != nil {
				r.OnSkip(lineNo, err)
			}
			if !errors.Is(err, errNoTimestamp) {
				log.Printf("[replay] line %d skipped: %v", lineNo, err)
			}
			continue
		}

		if r.speed > 0 && !prevTS.IsZero() {
			if gap := tick.TS.Sub(prevTS); gap > 0 {
				wait := time.Duration(float64(gap) / r.speed)
				if wait > maxSleep {
					wait = maxSleep
				}
				if err := r.sleep(ctx, wait); err != nil {
					log.Printf("[replay] cancelled after %d ticks", emitted)
					return emitted, err
				}
			}
		}
		prevTS = tick.TS

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d ticks", emitted)
			return emitted, ctx.Err()
		case outCh <- tick:
		}
		if r.OnTick != nil {
			r.OnTick(tick)
		}
		emitted++
	}
	if err := sc.Err(); err != nil {
		return emitted, fmt.Errorf("replay: read: %w", err)
	}

	log.Printf("[replay] completed: %d ticks replayed", emitted)
	return emitted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ParseLine decodes one NDJSON tick. Symbol comes from "s" or "symbol", price
// from "p" or "price", size from "q" or "size" (string or number). The event
// time is "E" or "T" in epoch milliseconds, else "ts" in ISO-8601.
func ParseLine(line []byte) (model.Tick, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return model.Tick{}, fmt.Errorf("decode: %w", err)
	}

	ts, err := eventTime(obj)
	if err != nil {
		return model.Tick{}, err
	}

	symbol, _ := first(obj, "s", "symbol").(string)
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.Tick{}, errors.New("missing symbol")
	}

	rawPrice := first(obj, "p", "price")
	if rawPrice == nil {
		return model.Tick{}, errors.New("missing price")
	}
	price, err := toDecimal(rawPrice)
	if err != nil {
		return model.Tick{}, fmt.Errorf("price: %w", err)
	}

	size := decimal.Zero
	if raw := first(obj, "q", "size"); raw != nil {
		if size, err = toDecimal(raw); err != nil {
			return model.Tick{}, fmt.Errorf("size: %w", err)
		}
	}

	return model.Tick{
		Symbol: symbol,
		Price:  price.InexactFloat64(),
		Size:   size.InexactFloat64(),
		TS:     ts,
	}, nil
}

func eventTime(obj map[string]any) (time.Time, error) {
	if raw := first(obj, "E", "T"); raw != nil {
		ms, err := toDecimal(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("epoch ms: %w", err)
		}
		return time.UnixMilli(ms.IntPart()).UTC(), nil
	}
	if s, ok := obj["ts"].(string); ok {
		return parseISO(s)
	}
	return time.Time{}, errNoTimestamp
}

// isoLayouts are tried in order; zone-less timestamps are taken as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable ts %q", s)
}

// first returns the first non-nil value among keys.
func first(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(t))
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %T", v)
	}
}
