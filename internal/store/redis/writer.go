package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"screener-stream/internal/metrics"
	"screener-stream/internal/model"
)

const (
	// Alert stream trimming: bounded recent history, same cap as the
	// SQLite table.
	alertStreamMaxLen = 1000

	defaultLatestTTL = 30 * time.Minute

	alertStreamKey = "alerts:stream"
	alertChannel   = "alerts.events"

	// Checkpoint TTL is generous: restores are age-gated by the engine
	// anyway, and SQLite holds a durable copy.
	checkpointKey = "engine:checkpoint"
	checkpointTTL = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration
}

// Writer mirrors the published stream into Redis: the latest snapshot
// per symbol under latest:{symbol}, fired alerts onto a capped stream,
// and both onto pub/sub channels for out-of-process consumers.
type Writer struct {
	client *goredis.Client
	ttl    time.Duration
	met    *metrics.Metrics
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig, met *metrics.Metrics) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}

	log.Infof("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, ttl: ttl, met: met}, nil
}

// Run reads updates from updateCh and mirrors them into Redis.
// Blocks until ctx is cancelled or updateCh is closed.
func (w *Writer) Run(ctx context.Context, updateCh <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updateCh:
			if !ok {
				return
			}
			if err := w.writeUpdate(ctx, u); err != nil {
				log.Errorf("[redis] pipeline error for %s: %v", u.Symbol, err)
			}
		}
	}
}

// writeUpdate performs the pipelined writes for one update:
// SET latest + PUBLISH, plus XADD + PUBLISH per fired alert.
func (w *Writer) writeUpdate(ctx context.Context, u model.Update) error {
	start := time.Now()

	snapJSON := string(u.Snapshot.JSON())
	pipe := w.client.Pipeline()

	pipe.Set(ctx, "latest:"+u.Symbol, snapJSON, w.ttl)
	pipe.Publish(ctx, "pub:updates:"+u.Symbol, snapJSON)

	for _, a := range u.Alerts {
		aj, err := json.Marshal(a)
		if err != nil {
			log.Errorf("[redis] marshal alert %s: %v", a.ID, err)
			continue
		}
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: alertStreamKey,
			MaxLen: alertStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": string(aj)},
		})
		pipe.Publish(ctx, alertChannel, string(aj))
	}

	_, err := pipe.Exec(ctx)
	if w.met != nil {
		w.met.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
	return err
}

// Recent reads up to limit alerts from the capped stream, newest
// first. Serves the history endpoint when the SQLite store is
// unavailable.
func (w *Writer) Recent(ctx context.Context, limit int) ([]model.Alert, error) {
	msgs, err := w.client.XRevRangeN(ctx, alertStreamKey, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", alertStreamKey, err)
	}

	alerts := make([]model.Alert, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var a model.Alert
		if err := json.Unmarshal([]byte(data), &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// SaveCheckpointJSON stores the engine checkpoint.
func (w *Writer) SaveCheckpointJSON(data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.client.Set(ctx, checkpointKey, data, checkpointTTL).Err()
}

// ReadLatestCheckpointJSON loads the stored checkpoint. Returns
// nil, nil when none exists.
func (w *Writer) ReadLatestCheckpointJSON() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := w.client.Get(ctx, checkpointKey).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", checkpointKey, err)
	}
	return data, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
