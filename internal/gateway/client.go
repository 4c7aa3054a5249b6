package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"screener-stream/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

var newline = []byte{'\n'}

// Client is one WebSocket consumer: the connection, its outbound queue
// and the hub subscriptions it holds. The two pumps own the connection
// exclusively; every frame leaves through send so writes never
// interleave. A full send buffer drops the frame — the client is
// already behind, and the hub keeps coalescing state for it upstream.
type Client struct {
	id   string
	srv  *Server
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	subs   map[string]*hub.Subscription
	closed bool
}

func newClient(srv *Server, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString()[:8],
		srv:  srv,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]*hub.Subscription),
	}
}

// readPump consumes inbound frames until the connection dies, then
// tears the client down. Read deadline is pushed by pongs.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("[gateway] client %s read error: %v", c.id, err)
			}
			return
		}
		c.dispatch(raw)
	}
}

// writePump drains send onto the wire and keeps the connection alive
// with pings. Queued frames are folded into one write, newline
// separated, so a bursty symbol costs one syscall instead of many.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case buf, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(buf)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(raw []byte) {
	var msg ClientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("", fmt.Sprintf("malformed message: %v", err))
		return
	}
	switch msg.Type {
	case msgSubscribe:
		c.handleSubscribe(msg)
	case msgUnsubscribe:
		c.handleUnsubscribe(msg)
	default:
		c.sendError(msg.ReqID, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// handleSubscribe opens a hub subscription for the symbol (or the
// screener on "*") and acks with current state. Unknown symbols
// subscribe fine and stay silent until they tick.
func (c *Client) handleSubscribe(msg ClientMsg) {
	symbol := normalizeSymbol(msg.Symbol)
	if symbol == "" {
		c.sendError(msg.ReqID, "symbol required")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, dup := c.subs[symbol]; dup {
		c.mu.Unlock()
		c.sendError(msg.ReqID, fmt.Sprintf("already subscribed to %s", symbol))
		return
	}
	sub := c.srv.hub.Subscribe(symbol)
	c.subs[symbol] = sub
	c.mu.Unlock()

	ack := SubscribedMsg{Type: "SUBSCRIBED", ReqID: msg.ReqID, Symbol: symbol}
	if symbol == hub.AllSymbols {
		ack.Stocks = c.srv.screenerRows(StocksQuery{})
	} else if snap, ok := c.srv.snaps.LatestFor(symbol); ok {
		ack.Snapshot = &snap
	}
	c.enqueueJSON(ack)

	go c.forward(sub)
	log.Debugf("[gateway] client %s subscribed to %s", c.id, symbol)
}

func (c *Client) handleUnsubscribe(msg ClientMsg) {
	symbol := normalizeSymbol(msg.Symbol)

	c.mu.Lock()
	sub, ok := c.subs[symbol]
	if ok {
		delete(c.subs, symbol)
	}
	c.mu.Unlock()

	if !ok {
		c.sendError(msg.ReqID, fmt.Sprintf("not subscribed to %s", symbol))
		return
	}
	sub.Close()
	c.enqueueJSON(UnsubscribedMsg{Type: "UNSUBSCRIBED", ReqID: msg.ReqID, Symbol: symbol})
	log.Debugf("[gateway] client %s unsubscribed from %s", c.id, symbol)
}

// forward drains one subscription into the outbound queue, shaping each
// update for its channel. Runs until the subscription closes.
func (c *Client) forward(sub *hub.Subscription) {
	screener := sub.Symbol() == hub.AllSymbols
	for u := range sub.C() {
		c.srv.latency.Record(float64(time.Since(u.Snapshot.UpdatedAt).Microseconds()) / 1000.0)
		if screener {
			c.enqueueJSON(ScreenerMsg{
				Type:          "SCREENER",
				Symbol:        u.Symbol,
				UpdatedFields: u.UpdatedFields,
				Snapshot:      u.Snapshot,
				Alerts:        u.Alerts,
			})
		} else {
			c.enqueueJSON(UpdateMsg{
				Type:     "UPDATE",
				Symbol:   u.Symbol,
				Snapshot: u.Snapshot,
				Signal:   u.Snapshot.Signal,
				Alerts:   u.Alerts,
			})
		}
	}
}

func (c *Client) sendError(reqID, msg string) {
	c.enqueueJSON(ErrorMsg{Type: "ERROR", ReqID: reqID, Error: msg})
}

func (c *Client) enqueueJSON(v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		log.Errorf("[gateway] client %s frame marshal failed: %v", c.id, err)
		return
	}
	c.enqueue(buf)
}

// enqueue hands a frame to the write pump without ever blocking the
// caller. Checked under the client mutex so no frame lands on a closed
// channel.
func (c *Client) enqueue(buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- buf:
	default:
	}
}

// close tears the client down once: closes every subscription (which
// ends the forward goroutines), closes send (which ends the write
// pump) and drops the client from the server registry. Idempotent.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.send)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	c.srv.removeClient(c)
	log.Infof("[gateway] client %s disconnected", c.id)
}
