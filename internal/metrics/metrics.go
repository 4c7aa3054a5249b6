package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Metrics holds all Prometheus metrics for the screener pipeline.
// Each instance carries its own registry so tests and tools can build
// as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal     prometheus.Counter
	TicksRejected  *prometheus.CounterVec // labels: reason=malformed|retrograde|overflow
	FeedReconnects prometheus.Counter

	UpdatesPublished prometheus.Counter
	UpdatesDropped   prometheus.Counter
	TickLatency      prometheus.Histogram // tick dequeue to update publish

	AlertsFired      *prometheus.CounterVec // labels: type
	AlertsSuppressed prometheus.Counter

	HubSubscribers prometheus.Gauge
	HubQueueDrops  prometheus.Gauge // monotone, sampled from the hub
	WSClients      prometheus.Gauge

	SessionRollovers prometheus.Counter
	SymbolsTracked   prometheus.Gauge

	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	NotifyFailures *prometheus.CounterVec // labels: sink
}

// NewMetrics builds and registers all pipeline metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_ticks_total",
			Help: "Total ticks accepted into the engine",
		}),
		TicksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_ticks_rejected_total",
			Help: "Ticks rejected before processing",
		}, []string{"reason"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_feed_reconnects_total",
			Help: "Feed reconnection attempts",
		}),

		UpdatesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_updates_published_total",
			Help: "Snapshot updates emitted by the engine",
		}),
		UpdatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_updates_dropped_total",
			Help: "Updates dropped because the egress channel was full",
		}),
		TickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_tick_latency_seconds",
			Help:    "Latency from tick dequeue to update publish",
			Buckets: []float64{0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.025},
		}),

		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_alerts_fired_total",
			Help: "Alerts fired (by type)",
		}, []string{"type"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_alerts_suppressed_total",
			Help: "Alert transitions swallowed by cooldown",
		}),

		HubSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_hub_subscribers",
			Help: "Current hub subscriber count",
		}),
		HubQueueDrops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_hub_queue_drops_total",
			Help: "Updates evicted from subscriber queues (coalescing)",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_ws_clients",
			Help: "Connected WebSocket clients",
		}),

		SessionRollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_session_rollovers_total",
			Help: "Per-symbol session rollovers observed",
		}),
		SymbolsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_symbols_tracked",
			Help: "Symbols with live windows",
		}),

		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "screener_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "screener_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screener_redis_buffered_writes_total",
			Help: "Writes buffered locally while the Redis breaker was open",
		}),

		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screener_notify_failures_total",
			Help: "Notification delivery failures (by sink)",
		}, []string{"sink"}),
	}

	m.registry.MustRegister(
		m.TicksTotal,
		m.TicksRejected,
		m.FeedReconnects,
		m.UpdatesPublished,
		m.UpdatesDropped,
		m.TickLatency,
		m.AlertsFired,
		m.AlertsSuppressed,
		m.HubSubscribers,
		m.HubQueueDrops,
		m.WSClients,
		m.SessionRollovers,
		m.SymbolsTracked,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.NotifyFailures,
	)

	return m
}

// Handler serves this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HealthStatus represents the pipeline health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected bool
	LastTickTime  time.Time

	RedisEnabled   bool
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	SymbolCount     int
	SubscriberCount int
	SessionState    string
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		SQLiteOK:  true,
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetCounts(symbols, subscribers int) {
	h.mu.Lock()
	h.SymbolCount = symbols
	h.SubscriberCount = subscribers
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessionState(s string) {
	h.mu.Lock()
	h.SessionState = s
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency probes.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisBad := h.RedisEnabled && !h.RedisConnected
	if !h.FeedConnected || redisBad || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		SessionState    string  `json:"session_state"`
		Symbols         int     `json:"symbols"`
		Subscribers     int     `json:"subscribers"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		SessionState:    h.SessionState,
		Symbols:         h.SymbolCount,
		Subscribers:     h.SubscriberCount,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Infof("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
