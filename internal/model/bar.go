package model

import (
	"encoding/json"
	"time"
)

// Bar is an OHLCV bar for one symbol and timeframe.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	TS        time.Time `json:"bar_ts"` // bucket start (UTC, timeframe-aligned)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Count     int       `json:"count"` // ticks aggregated
}

// Key returns "timeframe:symbol".
func (b *Bar) Key() string {
	return string(b.Timeframe) + ":" + b.Symbol
}

// StreamKey returns the Redis stream key: "bar:{timeframe}:{symbol}".
func (b *Bar) StreamKey() string {
	return "bar:" + b.Key()
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// PricePoint is one (timestamp, value) observation of a price series.
type PricePoint struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Closes extracts the close-price series from bars, preserving order.
func Closes(bars []Bar) []PricePoint {
	out := make([]PricePoint, len(bars))
	for i := range bars {
		out[i] = PricePoint{TS: bars[i].TS, Value: bars[i].Close}
	}
	return out
}
