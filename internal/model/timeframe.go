package model

import (
	"errors"
	"fmt"
	"time"
)

// Timeframe is a bar interval label accepted by the bar store and the API.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// ErrUnknownTimeframe is returned when a timeframe label is not one of 1s, 1m, 5m.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

var timeframeDurations = map[Timeframe]time.Duration{
	TF1s: time.Second,
	TF1m: time.Minute,
	TF5m: 5 * time.Minute,
}

// ParseTimeframe validates a timeframe label.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// Timeframes lists the supported timeframes from finest to coarsest.
func Timeframes() []Timeframe {
	return []Timeframe{TF1s, TF1m, TF5m}
}

// Duration returns the bar length. Unknown timeframes return 0.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Millis returns the bar length in milliseconds.
func (tf Timeframe) Millis() int64 {
	return tf.Duration().Milliseconds()
}

// Bucket returns the start of the bar containing ts (UTC, interval-aligned).
func (tf Timeframe) Bucket(ts time.Time) time.Time {
	ms := tf.Millis()
	if ms <= 0 {
		return ts.UTC()
	}
	u := ts.UnixMilli()
	return time.UnixMilli(u - mod(u, ms)).UTC()
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
