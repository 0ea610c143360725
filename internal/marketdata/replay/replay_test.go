package replay

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairs-systemv1/internal/model"
)

func writeFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ticks.ndjson")
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l + "\n")
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestParseLine_Formats(t *testing.T) {
	cases := []struct {
		name string
		line string
		want model.Tick
	}{
		{
			"binance trade",
			`{"e":"trade","E":1705310100123,"s":"BTCUSDT","p":"42150.10","q":"0.5","T":1705310100120}`,
			model.Tick{Symbol: "BTCUSDT", Price: 42150.10, Size: 0.5, TS: time.UnixMilli(1705310100123).UTC()},
		},
		{
			"T only",
			`{"s":"ethusdt","p":2500.5,"q":1,"T":1705310100000}`,
			model.Tick{Symbol: "ETHUSDT", Price: 2500.5, Size: 1, TS: time.UnixMilli(1705310100000).UTC()},
		},
		{
			"iso with Z and long keys",
			`{"symbol":"BTCUSDT","price":"100","size":"2","ts":"2024-01-15T09:15:00.250Z"}`,
			model.Tick{Symbol: "BTCUSDT", Price: 100, Size: 2, TS: time.Date(2024, 1, 15, 9, 15, 0, 250e6, time.UTC)},
		},
		{
			"iso with offset",
			`{"s":"BTCUSDT","p":"1","ts":"2024-01-15T14:45:00+05:30"}`,
			model.Tick{Symbol: "BTCUSDT", Price: 1, TS: time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)},
		},
		{
			"naive iso is utc",
			`{"s":"BTCUSDT","p":"1","ts":"2024-01-15T09:15:00"}`,
			model.Tick{Symbol: "BTCUSDT", Price: 1, TS: time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseLine([]byte(c.line))
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestParseLine_Rejects(t *testing.T) {
	_, err := ParseLine([]byte(`{"s":"BTCUSDT","p":"1"}`))
	assert.ErrorIs(t, err, errNoTimestamp)

	for _, line := range []string{
		`{broken`,
		`{"p":"1","T":1}`,
		`{"s":"BTCUSDT","T":1}`,
		`{"s":"BTCUSDT","p":"x","T":1}`,
		`{"s":"BTCUSDT","p":"1","ts":"yesterday"}`,
	} {
		_, err := ParseLine([]byte(line))
		assert.Error(t, err, line)
	}
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.ndjson"), 1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_SkipsAndSleepsScaled(t *testing.T) {
	path := writeFile(t,
		`{"s":"BTCUSDT","p":"100","T":1705310100000}`,
		``,
		`{"s":"BTCUSDT","p":"101"}`,
		`not json`,
		`{"s":"BTCUSDT","p":"102","T":1705310102000}`,
		`{"s":"BTCUSDT","p":"103","T":1705310160000}`,
	)
	r, err := New(path, 2)
	require.NoError(t, err)

	var sleeps []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	var skipped []int
	r.OnSkip = func(line int, err error) { skipped = append(skipped, line) }

	out := make(chan model.Tick, 10)
	n, err := r.Run(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{3, 4}, skipped)
	// 2s gap at 2x = 1s; 58s gap at 2x = 29s, capped at 5s.
	assert.Equal(t, []time.Duration{time.Second, maxSleep}, sleeps)

	close(out)
	var prices []float64
	for tk := range out {
		prices = append(prices, tk.Price)
	}
	assert.Equal(t, []float64{100, 102, 103}, prices)
}

func TestRun_SpeedZeroNeverSleeps(t *testing.T) {
	path := writeFile(t,
		`{"s":"BTCUSDT","p":"100","T":1705310100000}`,
		`{"s":"BTCUSDT","p":"101","T":1705310900000}`,
	)
	r, err := New(path, 0)
	require.NoError(t, err)
	r.sleep = func(context.Context, time.Duration) error {
		t.Fatal("unexpected sleep")
		return nil
	}
	n, err := r.Run(context.Background(), make(chan model.Tick, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_Cancelled(t *testing.T) {
	path := writeFile(t,
		`{"s":"BTCUSDT","p":"100","T":1705310100000}`,
		`{"s":"BTCUSDT","p":"101","T":1705310101000}`,
	)
	r, err := New(path, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := r.Run(ctx, make(chan model.Tick))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestRecorder_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf)
	in := model.Tick{Symbol: "ETHUSDT", Price: 2501.25, Size: 0.125, TS: time.UnixMilli(1705310100123).UTC()}
	require.NoError(t, rec.Write(in))
	require.NoError(t, rec.Flush())

	got, err := ParseLine(bytes.TrimSpace(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, in, got)
}
