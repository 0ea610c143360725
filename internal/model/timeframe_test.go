package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	for _, s := range []string{"1s", "1m", "5m"} {
		tf, err := ParseTimeframe(s)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", s, err)
		}
		if string(tf) != s {
			t.Errorf("expected %s, got %s", s, tf)
		}
	}

	if _, err := ParseTimeframe("15m"); !errors.Is(err, ErrUnknownTimeframe) {
		t.Errorf("expected ErrUnknownTimeframe, got %v", err)
	}
}

func TestTimeframe_Bucket(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 7, 42, 500_000_000, time.UTC)

	cases := []struct {
		tf   Timeframe
		want time.Time
	}{
		{TF1s, time.Date(2024, 3, 1, 10, 7, 42, 0, time.UTC)},
		{TF1m, time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC)},
		{TF5m, time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		if got := c.tf.Bucket(ts); !got.Equal(c.want) {
			t.Errorf("%s: expected %v, got %v", c.tf, c.want, got)
		}
	}
}

func TestCloses_PreservesOrder(t *testing.T) {
	t0 := time.Unix(1_700_000_000, 0).UTC()
	bars := []Bar{
		{Symbol: "BTCUSDT", TS: t0, Close: 1},
		{Symbol: "BTCUSDT", TS: t0.Add(time.Minute), Close: 2},
	}
	pts := Closes(bars)
	if len(pts) != 2 || pts[0].Value != 1 || pts[1].Value != 2 || !pts[1].TS.Equal(t0.Add(time.Minute)) {
		t.Errorf("unexpected closes: %+v", pts)
	}
}

func TestBar_StreamKey(t *testing.T) {
	b := Bar{Symbol: "ETHUSDT", Timeframe: TF1m}
	if got := b.StreamKey(); got != "bar:1m:ETHUSDT" {
		t.Errorf("expected bar:1m:ETHUSDT, got %s", got)
	}
}
