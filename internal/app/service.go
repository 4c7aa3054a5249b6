// Package app assembles the screener pipeline: feed → engine → fan-out
// → {hub, stores, notifications}, with the gateway and metrics servers
// in front. It owns lifecycle and ordered shutdown; the pieces it wires
// stay ignorant of each other.
package app

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"screener-stream/config"
	"screener-stream/internal/bus"
	"screener-stream/internal/engine"
	"screener-stream/internal/feed"
	"screener-stream/internal/gateway"
	"screener-stream/internal/hub"
	"screener-stream/internal/metrics"
	"screener-stream/internal/model"
	"screener-stream/internal/notification"
	"screener-stream/internal/session"
	redisstore "screener-stream/internal/store/redis"
	sqlitestore "screener-stream/internal/store/sqlite"
)

const (
	gaugeSampleInterval = 5 * time.Second
	livenessInterval    = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
	redisBreakerTrips   = 5
	redisBreakerReset   = 10 * time.Second
	redisBufferCap      = 10000
)

// Service is the top-level orchestrator for the screener engine
// process. New wires dependencies; Run starts them and blocks until the
// context is cancelled.
type Service struct {
	cfg *config.Config

	met    *metrics.Metrics
	health *metrics.HealthStatus
	th     *config.ThresholdStore
	clock  session.Clock

	eng    *engine.Engine
	hub    *hub.Hub
	source feed.Source

	redisWriter *redisstore.Writer
	sqlWriter   *sqlitestore.Writer
	sqlReader   *sqlitestore.Reader

	dispatcher *notification.Dispatcher
	gw         *gateway.Server
	metricsSrv *metrics.Server
}

// New wires a Service from config. Redis and SQLite are optional:
// init failures degrade the relevant features and are reported on
// /healthz rather than aborting the process.
func New(cfg *config.Config) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		met:    metrics.NewMetrics(),
		health: metrics.NewHealthStatus(),
		th:     config.NewThresholdStore(cfg.Thresholds),
		hub:    hub.New(cfg.Hub.QueueSize),
	}

	switch cfg.Session.Mode {
	case "always":
		svc.clock = session.NewAlwaysOpen()
	default:
		svc.clock = session.NewNSE()
	}

	// ---- SQLite (alert history + checkpoint fallback) ----
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	var err error
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLite.Path}, svc.met)
	if err != nil {
		log.Warnf("[app] sqlite writer init failed: %v (alert history disabled)", err)
		svc.health.SetSQLiteOK(false)
	} else {
		svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLite.Path)
		if err != nil {
			log.Warnf("[app] sqlite reader init failed: %v", err)
		}
	}

	// ---- Redis (latest cache, alert stream, checkpoint) ----
	svc.health.SetRedisEnabled(cfg.Redis.Enabled)
	if cfg.Redis.Enabled {
		svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			LatestTTL: cfg.Redis.LatestTTL,
		}, svc.met)
		if err != nil {
			log.Warnf("[app] redis unreachable at %s: %v (running without redis)", cfg.Redis.Addr, err)
			svc.health.SetRedisEnabled(false)
			svc.redisWriter = nil
		}
	}

	// ---- Engine, checkpoint store preferring redis ----
	var ckpt model.CheckpointStore
	switch {
	case svc.redisWriter != nil:
		ckpt = svc.redisWriter
	case svc.sqlWriter != nil:
		ckpt = svc.sqlWriter
	}
	svc.eng = engine.New(engine.Config{
		WorkerBuffer:       cfg.Engine.WorkerBuffer,
		UpdateBuffer:       cfg.Engine.UpdateBuffer,
		CheckpointInterval: cfg.Engine.CheckpointInterval,
		CheckpointMaxAge:   cfg.Engine.CheckpointMaxAge,
	}, svc.th, svc.clock, svc.met, ckpt)

	// ---- Feed ----
	svc.source, err = feed.New(cfg)
	if err != nil {
		return nil, err
	}
	if ws, ok := svc.source.(*feed.WS); ok {
		ws.OnConnect = func() { svc.health.SetFeedConnected(true) }
		ws.OnReconnect = func() {
			svc.health.SetFeedConnected(false)
			svc.met.FeedReconnects.Inc()
		}
	} else {
		// kafka and replay sources have no connection lifecycle to track
		svc.health.SetFeedConnected(true)
	}

	// ---- Notification sinks ----
	svc.dispatcher = notification.FromConfig(cfg, svc.met)

	// ---- Gateway; alert history reads prefer sqlite, fall back to redis ----
	var history model.AlertHistory
	switch {
	case svc.sqlReader != nil:
		history = svc.sqlReader
	case svc.redisWriter != nil:
		history = svc.redisWriter
	}
	svc.gw = gateway.New(cfg.Gateway.Addr, gateway.Deps{
		Snapshots: svc.eng,
		Hub:       svc.hub,
		Alerts:    history,
		Settings:  svc.th,
		Watchlist: gateway.NewWatchlist(cfg.Watchlist),
		Metrics:   svc.met,
		Health:    svc.health,
	})
	svc.metricsSrv = metrics.NewServer(cfg.Metrics.Addr, svc.met, svc.health)

	return svc, nil
}

// Run starts every subsystem and blocks until ctx is cancelled, then
// shuts down in dependency order: feed first, stores last.
func (svc *Service) Run(ctx context.Context) error {
	if err := svc.eng.Restore(); err != nil {
		log.Warnf("[app] checkpoint restore skipped: %v", err)
	}

	// Fan engine updates out to the internal consumers. The fan-out
	// terminates on update-channel close, which only happens after the
	// engine has drained its workers, so shutdown loses nothing that
	// ingestion accepted.
	fan := bus.New(svc.cfg.Engine.UpdateBuffer)
	hubCh := fan.Subscribe("hub")
	notifyCh := fan.Subscribe("notify")
	var redisCh, sqliteCh <-chan model.Update
	if svc.redisWriter != nil {
		redisCh = fan.Subscribe("redis")
	}
	if svc.sqlWriter != nil {
		sqliteCh = fan.Subscribe("sqlite")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fan.Run(context.Background(), svc.eng.Updates())
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range hubCh {
			svc.hub.Publish(u)
			svc.health.SetLastTickTime(time.Now())
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.dispatcher.Run(notifyCh)
	}()

	if redisCh != nil {
		sink := svc.newRedisSink(ctx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Run(context.Background(), redisCh)
		}()
	}
	if sqliteCh != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.sqlWriter.Run(context.Background(), sqliteCh)
		}()
	}

	// ---- Engine + feed ----
	ticks := make(chan model.Tick, svc.cfg.Engine.TickBuffer)
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.eng.Run(ctx, ticks)
	}()
	go func() {
		defer close(ticks)
		if err := svc.source.Run(ctx, ticks); err != nil {
			log.Errorf("[app] %s feed stopped: %v", svc.source.Name(), err)
		}
	}()

	// ---- Servers and background samplers ----
	svc.gw.Start()
	svc.metricsSrv.Start()
	svc.startGaugeSampler(ctx)
	if rdb, sqlDB := svc.redisClient(), svc.sqlDB(); rdb != nil || sqlDB != nil {
		svc.health.StartLivenessChecker(ctx, rdb, sqlDB, livenessInterval)
	}

	log.Infof("[app] screener engine up: feed=%s gateway=%s metrics=%s redis=%v sinks=%d",
		svc.source.Name(), svc.cfg.Gateway.Addr, svc.cfg.Metrics.Addr,
		svc.redisWriter != nil, svc.dispatcher.Sinks())

	<-ctx.Done()
	log.Infof("[app] shutdown signal received")

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	svc.gw.Shutdown(shutCtx)
	wg.Wait() // feed → ticks close → engine drain → fan-out → stores flush
	svc.metricsSrv.Stop(shutCtx)

	if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}

	log.Infof("[app] shutdown complete")
	return nil
}

// newRedisSink wraps the redis writer in a circuit breaker and buffer
// so an outage is ridden out in memory instead of stalling the stream.
func (svc *Service) newRedisSink(ctx context.Context) model.UpdateWriter {
	cb := redisstore.NewCircuitBreaker(redisBreakerTrips, redisBreakerReset)
	cb.OnStateChange = func(from, to redisstore.State) {
		svc.met.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.met.RedisCircuitBreakerTrips.Inc()
		}
		log.Warnf("[app] redis circuit breaker %s -> %s", from, to)
	}
	bw := redisstore.NewBufferedWriter(ctx, svc.redisWriter, cb, redisBufferCap)
	bw.OnBuffer = func() { svc.met.RedisBufferedWrites.Inc() }
	bw.OnFlush = func(count int) {
		log.Infof("[app] redis recovered, flushed %d buffered writes", count)
	}
	return bw
}

// startGaugeSampler keeps the slow-moving gauges and health counters in
// step with the hub and engine.
func (svc *Service) startGaugeSampler(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(gaugeSampleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				symbols := svc.eng.Symbols()
				subs := svc.hub.Subscribers()
				svc.met.SymbolsTracked.Set(float64(symbols))
				svc.met.HubSubscribers.Set(float64(subs))
				svc.met.HubQueueDrops.Set(float64(svc.hub.Drops()))
				svc.health.SetCounts(symbols, subs)

				state := "closed"
				if svc.clock.IsOpen(time.Now()) {
					state = "open"
				}
				svc.health.SetSessionState(state)
			}
		}
	}()
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redisWriter == nil {
		return nil
	}
	return svc.redisWriter.Client()
}
