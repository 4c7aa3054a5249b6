// Package feed provides the tick sources the engine can ingest from: a
// live WebSocket stream, a Kafka consumer group, or a CSV replay file.
// Every source pushes model.Tick into the engine's ingress channel and
// drops rather than blocks when the channel is full.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"screener-stream/config"
	"screener-stream/internal/model"
)

// Source streams ticks into out until ctx is cancelled or the feed is
// exhausted. Implementations own their reconnect policy.
type Source interface {
	Name() string
	Run(ctx context.Context, out chan<- model.Tick) error
}

// New builds the source selected by cfg.Feed.Mode.
func New(cfg *config.Config) (Source, error) {
	switch cfg.Feed.Mode {
	case "ws":
		return NewWS(WSConfig{
			URL:               cfg.Feed.WS.URL,
			ReconnectDelay:    cfg.Feed.WS.ReconnectDelay,
			MaxReconnectDelay: cfg.Feed.WS.MaxReconnectDelay,
		})
	case "kafka":
		return NewKafka(KafkaConfig{
			Brokers:  cfg.Feed.Kafka.Brokers,
			Topic:    cfg.Feed.Kafka.Topic,
			GroupID:  cfg.Feed.Kafka.GroupID,
			MinBytes: cfg.Feed.Kafka.MinBytes,
			MaxBytes: cfg.Feed.Kafka.MaxBytes,
		})
	case "replay":
		return NewReplay(ReplayConfig{
			Path:  cfg.Feed.Replay.Path,
			Speed: cfg.Feed.Replay.Speed,
		})
	}
	return nil, fmt.Errorf("feed: unknown mode %q", cfg.Feed.Mode)
}

// parseTick decodes one wire message. Ticks without a symbol are
// rejected here so transport errors surface at the feed, not deep in
// the engine.
func parseTick(raw []byte) (model.Tick, error) {
	var t model.Tick
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.Tick{}, err
	}
	if t.Symbol == "" {
		return model.Tick{}, fmt.Errorf("tick without symbol")
	}
	return t, nil
}
