package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAlert() Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   "BTCUSDT/ETHUSDT spread stretched",
		Message: "z-score beyond entry",
		Pair:    "BTCUSDT/ETHUSDT",
		BarTS:   time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC),
		ZScore:  2.4,
		PValue:  math.NaN(),
	}
}

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), sampleAlert())
	require.NoError(t, err)
	assert.Equal(t, "WARNING", got["level"])
	assert.Equal(t, "BTCUSDT/ETHUSDT", got["pair"])
	assert.Equal(t, 2.4, got["zscore"])
	assert.Nil(t, got["p_value"], "NaN must serialize as null")
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), sampleAlert())
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.apiBase = srv.URL
	require.NoError(t, tg.Send(context.Background(), sampleAlert()))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", payload["chat_id"])
	assert.Equal(t, "MarkdownV2", payload["parse_mode"])
	assert.NotContains(t, payload, "disable_notification", "warnings notify")
	assert.Contains(t, payload["text"], "BTCUSDT/ETHUSDT z=2\\.40 @ 2024\\-01\\-15T09:15:00Z")
	assert.NotContains(t, payload["text"], "p=", "NaN p-value is omitted")
}

func TestTelegramNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42")
	tg.apiBase = srv.URL
	err := tg.Send(context.Background(), sampleAlert())
	assert.ErrorContains(t, err, "status 400: Bad Request: chat not found")
}

func TestTelegramText(t *testing.T) {
	a := sampleAlert()
	a.Level = AlertCritical
	a.PValue = 0.0123
	text := telegramText(a)
	assert.True(t, strings.HasPrefix(text, "🚨 *BTCUSDT/ETHUSDT spread stretched*"), text)
	assert.Contains(t, text, "p=0\\.0123")

	info := Alert{Level: AlertInfo, Title: "watch started"}
	assert.Equal(t, "ℹ️ *watch started*", telegramText(info))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\.c\!`, escapeMarkdown("a_b.c!"))
	assert.Equal(t, `\\\(x\)`, escapeMarkdown(`\(x)`))
}

type failing struct{ err error }

func (f failing) Send(context.Context, Alert) error { return f.err }

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{NewLogNotifier(), failing{boom}, NewLogNotifier()}
	err := m.Send(context.Background(), sampleAlert())
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, Multi{NewLogNotifier()}.Send(context.Background(), sampleAlert()))
}

func TestFromConfig(t *testing.T) {
	assert.Len(t, FromConfig("", "", ""), 1)
	assert.Len(t, FromConfig("http://hook", "", ""), 2)
	assert.Len(t, FromConfig("http://hook", "tok", "chat"), 3)
	assert.Len(t, FromConfig("", "tok", ""), 1)
}
