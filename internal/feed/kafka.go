package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"screener-stream/internal/model"
)

// KafkaConfig holds configuration for the Kafka tick source.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// Kafka consumes ticks from a topic as part of a consumer group. The
// message value is the same JSON tick the WebSocket feed carries.
type Kafka struct {
	cfg    KafkaConfig
	reader *kafka.Reader

	OnConnect func()
}

// NewKafka creates a Kafka source.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("feed: kafka brokers are required")
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 20
	}
	return &Kafka{
		cfg: cfg,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		}),
	}, nil
}

func (k *Kafka) Name() string { return "kafka" }

// Run streams ticks into out until ctx is cancelled. The reader owns
// broker reconnection; transient read errors are logged and retried.
func (k *Kafka) Run(ctx context.Context, out chan<- model.Tick) error {
	defer k.reader.Close()

	log.Infof("[feed] kafka consuming %s from %v (group %s)",
		k.cfg.Topic, k.cfg.Brokers, k.cfg.GroupID)
	if k.OnConnect != nil {
		k.OnConnect()
	}

	for {
		m, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Warnf("[feed] kafka read error: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		t, err := parseTick(m.Value)
		if err != nil {
			log.Warnf("[feed] kafka parse error: %v (offset %d)", err, m.Offset)
			continue
		}

		select {
		case out <- t:
		default:
			log.Warn("[feed] tick channel full, dropping tick")
		}
	}
}
