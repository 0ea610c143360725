package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairs-systemv1/internal/model"
)

func TestKeys(t *testing.T) {
	bar := model.Bar{Symbol: "BTCUSDT", Timeframe: model.TF1m}
	assert.Equal(t, "bar:1m:BTCUSDT", bar.StreamKey())
	assert.Equal(t, "bar:last:1m:BTCUSDT", LatestKey(model.TF1m, "BTCUSDT"))
	assert.Equal(t, "pub:bar:5m:ETHUSDT", PubSubChannel(model.TF5m, "ETHUSDT"))
}

func TestStreamMaxLen(t *testing.T) {
	assert.Equal(t, int64(10900), streamMaxLen(model.TF1s))
	assert.Equal(t, int64(280), streamMaxLen(model.TF1m))
	assert.Equal(t, int64(minStreamLen), streamMaxLen(model.TF5m))
	assert.Equal(t, int64(minStreamLen), streamMaxLen("bogus"))
}

// unreachable returns a publisher whose client fails fast without a server.
func unreachable(t *testing.T) *Publisher {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	p := newPublisher(client, PublisherConfig{MaxFailures: 2, ResetTimeout: time.Minute})
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPublisher_TripsBreakerWhenRedisDown(t *testing.T) {
	p := unreachable(t)
	var attempts int
	p.OnPublish = func(d time.Duration, err error) {
		attempts++
		assert.Error(t, err)
	}
	bar := model.Bar{Symbol: "BTCUSDT", Timeframe: model.TF1m, TS: time.Unix(0, 0).UTC(), Close: 1}
	ctx := context.Background()

	require.Error(t, p.PublishBar(ctx, bar))
	require.Error(t, p.PublishBar(ctx, bar))
	assert.Equal(t, StateOpen, p.Breaker().CurrentState())

	assert.ErrorIs(t, p.PublishBar(ctx, bar), ErrCircuitOpen)
	assert.Equal(t, 2, attempts, "open breaker must not reach Redis")

	_, ok, err := p.LatestBar(ctx, model.TF1m, "BTCUSDT")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestPublisher_RunDrainsUntilClosed(t *testing.T) {
	p := unreachable(t)
	ch := make(chan model.Bar, 5)
	for i := 0; i < 5; i++ {
		ch <- model.Bar{Symbol: "ETHUSDT", Timeframe: model.TF1s, TS: time.Unix(int64(i), 0).UTC()}
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	assert.Equal(t, StateOpen, p.Breaker().CurrentState())
}
