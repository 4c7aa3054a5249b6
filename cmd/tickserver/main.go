// cmd/tickserver — Demo WebSocket tick feed.
// Broadcasts simulated equity ticks so the engine can run without a
// real market-data subscription. Tick JSON matches model.Tick:
//
//	{"symbol":"RELIANCE","price":2990.45,"volume":120,"ts":"..."}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  — listen address (default ":8081")
//	TICK_SYMBOLS      — comma-separated symbols (default "RELIANCE,TCS,INFY,HDFCBANK,SBIN")
//	TICK_INTERVAL_MS  — per-round broadcast interval (default "200")
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"screener-stream/internal/logger"
	"screener-stream/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol string
	Price  float64
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop tick
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Infof("[tickserver] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Infof("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a ±0.1% random walk, floored at one rupee.
func walkPrice(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	price += price * pct
	if price < 1 {
		price = 1
	}
	return price
}

func runGenerator(h *hub, instruments []instrument, intervalMs int) {
	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(instruments[i].Price)
			b, err := json.Marshal(model.Tick{
				Symbol: instruments[i].Symbol,
				Price:  instruments[i].Price,
				Volume: int64(rand.Intn(500) + 1),
				TS:     time.Now().UTC(),
			})
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

func main() {
	logger.Init("tickserver", "text", "info")
	log.Infof("[tickserver] starting demo tick feed...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":8081")
	symbolsEnv := envOrDefault("TICK_SYMBOLS", "RELIANCE,TCS,INFY,HDFCBANK,SBIN")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 200)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[tickserver] no symbols configured via TICK_SYMBOLS")
	}
	log.Infof("[tickserver] symbols: %v, interval: %dms", symbolsEnv, intervalMs)

	h := newHub()
	go runGenerator(h, instruments, intervalMs)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Infof("[tickserver] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// Rough NSE large-cap prices so gaps and bands look plausible.
var startingPrices = map[string]float64{
	"RELIANCE": 2990.00,
	"TCS":      4110.50,
	"INFY":     1585.25,
	"HDFCBANK": 1650.00,
	"SBIN":     815.40,
}

func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol == "" {
			continue
		}
		price := startingPrices[symbol]
		if price == 0 {
			price = 1000.00
		}
		result = append(result, instrument{Symbol: symbol, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
