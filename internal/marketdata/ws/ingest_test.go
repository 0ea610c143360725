package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairs-systemv1/internal/model"
)

func TestParseTrade_Combined(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1705310100123,"s":"BTCUSDT","t":12345,"p":"42150.10","q":"0.00250","T":1705310100120,"m":true}}`)
	tick, err := ParseTrade(raw)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.Equal(t, 42150.10, tick.Price)
	assert.Equal(t, 0.0025, tick.Size)
	assert.Equal(t, time.UnixMilli(1705310100120).UTC(), tick.TS)
}

func TestParseTrade_RawFallsBackToEventTime(t *testing.T) {
	tick, err := ParseTrade([]byte(`{"e":"trade","E":1705310100123,"s":"ethusdt","p":"2501.5","q":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", tick.Symbol)
	assert.Equal(t, time.UnixMilli(1705310100123).UTC(), tick.TS)
}

func TestParseTrade_Errors(t *testing.T) {
	cases := map[string]string{
		"not json":       `nope`,
		"wrong event":    `{"e":"kline","s":"BTCUSDT","p":"1"}`,
		"missing symbol": `{"e":"trade","p":"1"}`,
		"bad price":      `{"e":"trade","s":"BTCUSDT","p":"abc"}`,
		"zero price":     `{"e":"trade","s":"BTCUSDT","p":"0.000"}`,
		"bad quantity":   `{"e":"trade","s":"BTCUSDT","p":"1","q":"x"}`,
	}
	for name, raw := range cases {
		_, err := ParseTrade([]byte(raw))
		assert.Error(t, err, name)
	}
}

func TestStreamURL(t *testing.T) {
	u, err := StreamURL(DefaultBaseURL, []string{"BTCUSDT", " ethusdt ", ""})
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@trade/ethusdt@trade", u)

	_, err = StreamURL(DefaultBaseURL, nil)
	assert.Error(t, err)
}

func TestIngest_StreamsFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@trade/ethusdt@trade", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","s":"BTCUSDT","p":"100.5","q":"2","T":1705310100000}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"ethusdt@trade","data":{"e":"trade","s":"ETHUSDT","p":"50.25","q":"1","T":1705310100001}}`))
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	ing, err := New(Config{
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream",
		Symbols: []string{"btcusdt", "ethusdt"},
	})
	require.NoError(t, err)

	tickCh := make(chan model.Tick, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Start(ctx, tickCh) }()

	var got []model.Tick
	for len(got) < 2 {
		select {
		case tk := <-tickCh:
			got = append(got, tk)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out, got %d ticks", len(got))
		}
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, 100.5, got[0].Price)
	assert.Equal(t, "ETHUSDT", got[1].Symbol)
}
