// Package notification delivers fired alerts to external channels
// (Telegram, webhooks) and to the process log. Sinks hang off an async
// event bus so a slow HTTP endpoint never backs up the alert stream.
package notification

import (
	"context"

	log "github.com/sirupsen/logrus"

	"screener-stream/internal/model"
)

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, a model.Alert) error
}

// LogNotifier writes alerts to the process log. Always registered, so
// every fired alert leaves at least one trace.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(_ context.Context, a model.Alert) error {
	entry := log.WithFields(log.Fields{
		"symbol": a.Symbol,
		"type":   a.Type,
		"value":  a.Value,
	})
	switch a.Severity {
	case model.SeverityCritical:
		entry.Errorf("[notify] %s", a.Message)
	case model.SeverityWarn:
		entry.Warnf("[notify] %s", a.Message)
	default:
		entry.Infof("[notify] %s", a.Message)
	}
	return nil
}
