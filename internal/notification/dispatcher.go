package notification

import (
	"context"
	"time"

	"github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"

	"screener-stream/config"
	"screener-stream/internal/metrics"
	"screener-stream/internal/model"
)

// topicAlert is the bus topic fired alerts are published on.
const topicAlert = "alert:fired"

// sendTimeout bounds a single delivery attempt.
const sendTimeout = 10 * time.Second

// Dispatcher fans fired alerts out to registered sinks over an async
// event bus. Deliveries run off the update path, so a stalled endpoint
// never backs up the stream.
type Dispatcher struct {
	bus   EventBus.Bus
	met   *metrics.Metrics
	sinks int
}

// NewDispatcher creates a dispatcher with no sinks registered.
func NewDispatcher(met *metrics.Metrics) *Dispatcher {
	return &Dispatcher{bus: EventBus.New(), met: met}
}

// Register attaches a sink. The name labels its failure metric.
func (d *Dispatcher) Register(name string, n Notifier) {
	err := d.bus.SubscribeAsync(topicAlert, func(a model.Alert) {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.Send(ctx, a); err != nil {
			log.Errorf("[notify] %s delivery failed: %v", name, err)
			if d.met != nil {
				d.met.NotifyFailures.WithLabelValues(name).Inc()
			}
		}
	}, false)
	if err != nil {
		log.Errorf("[notify] subscribe %s: %v", name, err)
		return
	}
	d.sinks++
}

// Sinks reports how many sinks are registered.
func (d *Dispatcher) Sinks() int { return d.sinks }

// Run drains updates, publishing each fired alert to every sink. It
// returns once the channel closes and in-flight deliveries finish.
func (d *Dispatcher) Run(updates <-chan model.Update) {
	for u := range updates {
		for _, a := range u.Alerts {
			d.bus.Publish(topicAlert, a)
		}
	}
	d.bus.WaitAsync()
	log.Info("[notify] dispatcher stopped")
}

// FromConfig builds a dispatcher with the sinks cfg enables. The log
// sink is always on.
func FromConfig(cfg *config.Config, met *metrics.Metrics) *Dispatcher {
	d := NewDispatcher(met)
	d.Register("log", NewLogNotifier())
	if cfg.Notify.Telegram.Enabled {
		d.Register("telegram", NewTelegramNotifier(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID))
		log.Info("[notify] telegram sink enabled")
	}
	if cfg.Notify.Webhook.Enabled {
		d.Register("webhook", NewWebhookNotifier(cfg.Notify.Webhook.URL))
		log.Info("[notify] webhook sink enabled")
	}
	return d
}
