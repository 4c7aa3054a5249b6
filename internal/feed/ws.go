package feed

import (
	"context"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"screener-stream/internal/model"
)

// WSConfig holds configuration for the WebSocket tick source.
type WSConfig struct {
	// URL of the tick server, e.g. "ws://localhost:8081/ws".
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *WSConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// WS streams ticks from a JSON WebSocket feed. The wire format is one
// model.Tick per text message:
//
//	{"symbol":"RELIANCE","price":2401.50,"volume":120,"ts":"..."}
type WS struct {
	cfg WSConfig

	// OnConnect/OnReconnect are optional hooks for health and metrics.
	OnConnect   func()
	OnReconnect func()
}

// NewWS creates a WebSocket source. Returns an error if the URL is
// unparseable.
func NewWS(cfg WSConfig) (*WS, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &WS{cfg: cfg}, nil
}

func (w *WS) Name() string { return "ws" }

// Run connects and streams ticks into out until ctx is cancelled,
// redialing with exponential backoff on disconnect. A successful
// connection resets the backoff.
func (w *WS) Run(ctx context.Context, out chan<- model.Tick) error {
	delay := w.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := w.runOnce(ctx, out)
		if err == nil {
			return nil
		}
		if connected {
			delay = w.cfg.ReconnectDelay
		}

		log.Warnf("[feed] ws disconnected (%v), reconnecting in %s", err, delay)
		if w.OnReconnect != nil {
			w.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > w.cfg.MaxReconnectDelay {
			delay = w.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect
// or ctx cancel. connected reports whether the dial succeeded.
func (w *WS) runOnce(ctx context.Context, out chan<- model.Tick) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Infof("[feed] ws connected to %s", w.cfg.URL)
	if w.OnConnect != nil {
		w.OnConnect()
	}

	// Context watcher closes the connection to unblock ReadMessage.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, nil
			default:
			}
			return true, err
		}

		t, err := parseTick(raw)
		if err != nil {
			log.Warnf("[feed] ws parse error: %v (raw: %s)", err, raw)
			continue
		}

		select {
		case out <- t:
		default:
			log.Warn("[feed] tick channel full, dropping tick")
		}
	}
}
