package model

import (
	"strings"
	"time"
)

// Tick represents a single trade print for one symbol.
// Prices are float64 quote-currency units as delivered by the exchange.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Size   float64   `json:"size"`
	TS     time.Time `json:"ts"` // UTC event time
}

// NormalizeSymbol upper-cases and trims a symbol so "btcusdt" and "BTCUSDT " key the same rows.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
