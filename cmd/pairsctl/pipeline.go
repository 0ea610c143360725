package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"pairs-systemv1/config"
	"pairs-systemv1/internal/marketdata/agg"
	"pairs-systemv1/internal/marketdata/bus"
	"pairs-systemv1/internal/metrics"
	"pairs-systemv1/internal/model"
	redisstore "pairs-systemv1/internal/store/redis"
	sqlitestore "pairs-systemv1/internal/store/sqlite"
)

const (
	pipelineBuffer     = 5000
	saturationInterval = 5 * time.Second
)

// pipeline persists ticks to SQLite and, when Redis is enabled, aggregates
// them into bars mirrored to Redis. An optional recorder gets a copy of
// every tick.
type pipeline struct {
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	writer    *sqlitestore.Writer
	publisher *redisstore.Publisher // nil when disabled or unreachable
	fanout    *bus.FanOut[model.Tick]

	sqliteCh <-chan model.Tick
	aggCh    <-chan model.Tick
	recordCh <-chan model.Tick

	// historical replays close bars on event time only
	lossless bool

	wg sync.WaitGroup
}

// newPipeline opens the stores. lossless makes the fan-out block on slow
// consumers, which replay wants and live ingest does not.
func newPipeline(cfg *config.Config, prom *metrics.Metrics, health *metrics.HealthStatus, lossless, record bool) (*pipeline, error) {
	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("sqlite init: %w", err)
	}
	w.OnCommit = func(rows int, d time.Duration) {
		prom.SQLiteCommitDur.Observe(d.Seconds())
		prom.SQLiteRowsTotal.Add(float64(rows))
	}
	health.CheckSQLite(context.Background(), w.DB())

	p := &pipeline{prom: prom, health: health, writer: w, lossless: lossless}

	health.SetRedisEnabled(cfg.RedisEnabled)
	if cfg.RedisEnabled {
		pub, err := redisstore.New(redisstore.PublisherConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[pipeline] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			pub.OnPublish = func(d time.Duration, err error) {
				prom.RedisWriteDur.Observe(d.Seconds())
			}
			pub.Breaker().OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				log.Printf("[redis] circuit breaker %s -> %s", from, to)
			}
			health.CheckRedis(context.Background(), pub.Client())
			p.publisher = pub
		}
	}

	p.fanout = bus.New[model.Tick](pipelineBuffer)
	p.fanout.Blocking = lossless
	p.fanout.OnDrop = func(name string) {
		prom.FanoutDropsTotal.WithLabelValues(name).Inc()
	}
	p.sqliteCh = p.fanout.Subscribe("sqlite")
	if p.publisher != nil {
		p.aggCh = p.fanout.Subscribe("agg")
	}
	if record {
		p.recordCh = p.fanout.Subscribe("record")
	}
	return p, nil
}

// start runs every stage until in is closed or ctx is cancelled.
func (p *pipeline) start(ctx context.Context, in <-chan model.Tick) {
	var rdb *goredis.Client
	if p.publisher != nil {
		rdb = p.publisher.Client()
	}
	p.health.StartLivenessChecker(ctx, rdb, p.writer.DB(), 10*time.Second)

	go p.watchSaturation(ctx)
	p.goRun(func() { p.fanout.Run(ctx, in) })
	p.goRun(func() { p.writer.Run(ctx, p.sqliteCh) })

	if p.publisher != nil {
		barCh := make(chan model.Bar, pipelineBuffer)
		aggregator := agg.New()
		if p.lossless {
			aggregator.Grace = 0
		}
		aggregator.OnLateTick = func() { p.prom.LateTicks.Inc() }
		aggregator.OnBar = func(tf model.Timeframe) {
			p.prom.BarsTotal.WithLabelValues(string(tf)).Inc()
		}
		p.goRun(func() {
			aggregator.Run(ctx, p.aggCh, barCh)
			close(barCh)
		})
		// The publisher outlives ctx so bars flushed on shutdown still go out.
		p.goRun(func() { p.publisher.Run(context.Background(), barCh) })
	}
}

// watchSaturation samples subscriber fill levels until ctx is done.
func (p *pipeline) watchSaturation(ctx context.Context) {
	ticker := time.NewTicker(saturationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.recordSaturation()
		}
	}
}

func (p *pipeline) recordSaturation() {
	for _, s := range p.fanout.ChannelStats() {
		if s.Cap > 0 {
			pct := float64(s.Len) / float64(s.Cap) * 100
			p.prom.ChannelSaturationPct.WithLabelValues("fanout_" + s.Name).Set(pct)
		}
	}
}

// recorded returns the recorder subscription, nil unless requested.
func (p *pipeline) recorded() <-chan model.Tick { return p.recordCh }

func (p *pipeline) goRun(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// wait blocks until every stage has drained, then closes the stores.
func (p *pipeline) wait() {
	p.wg.Wait()
	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil {
			log.Printf("[pipeline] redis close: %v", err)
		}
	}
	if err := p.writer.Close(); err != nil {
		log.Printf("[pipeline] sqlite close: %v", err)
	}
}
