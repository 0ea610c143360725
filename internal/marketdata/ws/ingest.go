// Package ws streams live trades from a Binance-style combined WebSocket
// stream (<symbol>@trade) and normalizes them into model.Tick values.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"pairs-systemv1/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the public Binance combined-stream endpoint.
const DefaultBaseURL = "wss://stream.binance.com:9443/stream"

// Config holds configuration for the trade stream ingest.
type Config struct {
	// BaseURL of the combined stream endpoint; streams are appended as a query.
	BaseURL string
	Symbols []string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// ReadTimeout closes a silent connection so it can be redialled. Defaults to 60s.
	ReadTimeout time.Duration
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
}

// Ingest connects to the trade stream and pushes ticks into a channel.
type Ingest struct {
	cfg Config
	url string

	// Optional hooks
	OnReconnect func()
	OnConnected func(up bool)
	OnTick      func(model.Tick)
	OnDrop      func()
}

// New creates a new Ingest. Returns an error if no symbols are given or the
// URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := StreamURL(cfg.BaseURL, cfg.Symbols)
	if err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg, url: u}, nil
}

// StreamURL builds "<base>?streams=a@trade/b@trade".
func StreamURL(base string, symbols []string) (string, error) {
	if len(symbols) == 0 {
		return "", errors.New("ws: no symbols configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ws: parse url: %w", err)
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, s+"@trade")
	}
	if len(streams) == 0 {
		return "", errors.New("ws: no symbols configured")
	}
	// Binance expects the literal '/' and '@' separators, so no query escaping.
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// Start streams ticks into tickCh until ctx is cancelled, reconnecting with
// capped exponential backoff on disconnect.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := ing.runOnce(ctx, tickCh)
		if err == nil {
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		log.Printf("[ws] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection and reads until disconnect or ctx cancel.
// connected reports whether the dial succeeded.
func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[ws] connected to %s", ing.url)
	ing.setConnected(true)
	defer ing.setConnected(false)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(ing.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}

		tick, err := ParseTrade(raw)
		if err != nil {
			log.Printf("[ws] parse error: %v (raw: %.200s)", err, raw)
			continue
		}
		if ing.OnTick != nil {
			ing.OnTick(tick)
		}

		select {
		case tickCh <- tick:
		default:
			if ing.OnDrop != nil {
				ing.OnDrop()
			} else {
				log.Println("[ws] tickCh full, dropping tick")
			}
		}
	}
}

func (ing *Ingest) setConnected(up bool) {
	if ing.OnConnected != nil {
		ing.OnConnected(up)
	}
}

// tradeEvent is a Binance trade payload.
type tradeEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// combined wraps payloads on /stream endpoints.
type combined struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// ParseTrade decodes a trade message, either raw or wrapped in a combined
// stream envelope. Prices and sizes are parsed as exact decimals.
func ParseTrade(raw []byte) (model.Tick, error) {
	var env combined
	if err := json.Unmarshal(raw, &env); err != nil {
		return model.Tick{}, fmt.Errorf("decode: %w", err)
	}
	payload := raw
	if len(env.Data) > 0 {
		payload = env.Data
	}

	var ev tradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.Tick{}, fmt.Errorf("decode trade: %w", err)
	}
	if ev.Event != "" && ev.Event != "trade" {
		return model.Tick{}, fmt.Errorf("unexpected event %q", ev.Event)
	}
	if ev.Symbol == "" {
		return model.Tick{}, errors.New("missing symbol")
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		return model.Tick{}, fmt.Errorf("price %q: %w", ev.Price, err)
	}
	if !price.IsPositive() {
		return model.Tick{}, fmt.Errorf("non-positive price %s", price)
	}
	size := decimal.Zero
	if ev.Quantity != "" {
		if size, err = decimal.NewFromString(ev.Quantity); err != nil {
			return model.Tick{}, fmt.Errorf("quantity %q: %w", ev.Quantity, err)
		}
	}

	ms := ev.TradeTime
	if ms == 0 {
		ms = ev.EventTime
	}
	ts := time.Now().UTC()
	if ms > 0 {
		ts = time.UnixMilli(ms).UTC()
	}

	return model.Tick{
		Symbol: model.NormalizeSymbol(ev.Symbol),
		Price:  price.InexactFloat64(),
		Size:   size.InexactFloat64(),
		TS:     ts,
	}, nil
}
