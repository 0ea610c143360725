package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"pairs-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultLatestTTL = 30 * time.Minute
	// streamWindow is how much bar history each stream keeps (approximate trim).
	streamWindow = 3 * time.Hour
	minStreamLen = 200
)

// PublisherConfig configures the Redis bar publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures  int           // breaker threshold (default 5)
	ResetTimeout time.Duration // breaker open time (default 10s)
}

// Publisher mirrors closed bars to Redis: XADD to bar:{tf}:{symbol}, SET
// bar:last:{tf}:{symbol}, PUBLISH pub:bar:{tf}:{symbol}. All writes go
// through a CircuitBreaker so a Redis outage never stalls ingest.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker

	// OnPublish is called after each attempt that reached Redis (optional, for metrics).
	OnPublish func(d time.Duration, err error)
}

var _ model.BarPublisher = (*Publisher)(nil)

// New creates a Publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newPublisher(client, cfg), nil
}

func newPublisher(client *goredis.Client, cfg PublisherConfig) *Publisher {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	return &Publisher{
		client: client,
		cb:     NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
	}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker so callers can hook state changes.
func (p *Publisher) Breaker() *CircuitBreaker { return p.cb }

// LatestKey returns "bar:last:{tf}:{symbol}".
func LatestKey(tf model.Timeframe, symbol string) string {
	return "bar:last:" + string(tf) + ":" + symbol
}

// PubSubChannel returns "pub:bar:{tf}:{symbol}".
func PubSubChannel(tf model.Timeframe, symbol string) string {
	return "pub:bar:" + string(tf) + ":" + symbol
}

// streamMaxLen keeps roughly streamWindow of bars for tf.
func streamMaxLen(tf model.Timeframe) int64 {
	d := tf.Duration()
	if d <= 0 {
		return minStreamLen
	}
	n := int64(streamWindow/d) + 100
	if n < minStreamLen {
		n = minStreamLen
	}
	return n
}

// PublishBar writes one closed bar in a single pipeline.
func (p *Publisher) PublishBar(ctx context.Context, bar model.Bar) error {
	jsonData := string(bar.JSON())

	return p.cb.Execute(func() error {
		start := time.Now()
		pipe := p.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: bar.StreamKey(),
			MaxLen: streamMaxLen(bar.Timeframe),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, LatestKey(bar.Timeframe, bar.Symbol), jsonData, defaultLatestTTL)
		pipe.Publish(ctx, PubSubChannel(bar.Timeframe, bar.Symbol), jsonData)

		_, err := pipe.Exec(ctx)
		if p.OnPublish != nil {
			p.OnPublish(time.Since(start), err)
		}
		if err != nil {
			return fmt.Errorf("redis publish %s: %w", bar.Key(), err)
		}
		return nil
	})
}

// Run publishes bars from barCh until ctx is cancelled or barCh is closed.
// Failures are logged; an open breaker is logged once per outage.
func (p *Publisher) Run(ctx context.Context, barCh <-chan model.Bar) {
	skipping := false
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			err := p.PublishBar(ctx, bar)
			switch {
			case err == nil:
				skipping = false
			case errors.Is(err, ErrCircuitOpen):
				if !skipping {
					log.Printf("[redis] circuit open, skipping bar publishes")
					skipping = true
				}
			default:
				log.Printf("[redis] %v", err)
			}
		}
	}
}

// LatestBar reads the last published bar for (tf, symbol). ok is false when
// nothing was published within the TTL.
func (p *Publisher) LatestBar(ctx context.Context, tf model.Timeframe, symbol string) (bar model.Bar, ok bool, err error) {
	err = p.cb.Execute(func() error {
		data, err := p.client.Get(ctx, LatestKey(tf, symbol)).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis get latest bar: %w", err)
		}
		if err := json.Unmarshal(data, &bar); err != nil {
			return fmt.Errorf("redis decode latest bar: %w", err)
		}
		ok = true
		return nil
	})
	return bar, ok, err
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
