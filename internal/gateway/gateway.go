// Package gateway is the client-facing edge of the pipeline: a
// WebSocket endpoint carrying the SUBSCRIBE/UNSUBSCRIBE protocol for
// detail and screener channels, and a REST API for screener queries,
// alert history, runtime settings and the watchlist. It reads
// pipeline state, never writes into it; backpressure from any client
// stops at the hub's coalescing queues.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"screener-stream/config"
	"screener-stream/internal/hub"
	"screener-stream/internal/metrics"
	"screener-stream/internal/model"
)

// SnapshotSource is the read side of the pipeline the gateway serves
// from. *engine.Engine satisfies it.
type SnapshotSource interface {
	Latest() []model.StockSnapshot
	LatestFor(symbol string) (model.StockSnapshot, bool)
	ClosesFor(symbol string, n int) []float64
	Symbols() int
}

// Deps are the collaborators the server fronts. Alerts may be nil when
// no history store is configured; /api/alerts then reports unavailable.
type Deps struct {
	Snapshots SnapshotSource
	Hub       *hub.Hub
	Alerts    model.AlertHistory
	Settings  *config.ThresholdStore
	Watchlist *Watchlist
	Metrics   *metrics.Metrics
	Health    http.Handler
}

// Server hosts /ws and the REST API on one listener.
type Server struct {
	addr      string
	snaps     SnapshotSource
	hub       *hub.Hub
	alerts    model.AlertHistory
	settings  *config.ThresholdStore
	watch     *Watchlist
	met       *metrics.Metrics
	health    http.Handler
	latency   *LatencyTracker
	startedAt time.Time

	mu      sync.Mutex
	clients map[*Client]struct{}

	srv *http.Server
}

// New wires a server; Start actually binds the listener.
func New(addr string, d Deps) *Server {
	s := &Server{
		addr:      addr,
		snaps:     d.Snapshots,
		hub:       d.Hub,
		alerts:    d.Alerts,
		settings:  d.Settings,
		watch:     d.Watchlist,
		met:       d.Metrics,
		health:    d.Health,
		latency:   NewLatencyTracker(10000),
		startedAt: time.Now(),
		clients:   make(map[*Client]struct{}),
	}
	if s.watch == nil {
		s.watch = NewWatchlist(nil)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router mounts every route. Split out from handler() so tests can
// drive it directly.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stocks", s.handleStocks).Methods(http.MethodGet)
	api.HandleFunc("/stocks/{symbol}", s.handleStockDetail).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handlePutSettings).Methods(http.MethodPut)
	api.HandleFunc("/watchlist", s.handleWatchlist).Methods(http.MethodGet)
	api.HandleFunc("/watchlist/{symbol}", s.handleWatchlistAdd).Methods(http.MethodPost)
	api.HandleFunc("/watchlist/{symbol}", s.handleWatchlistRemove).Methods(http.MethodDelete)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWS)
	if s.health != nil {
		r.Handle("/healthz", s.health)
	}
	if s.met != nil {
		r.Handle("/metrics", s.met.Handler())
	}
	return r
}

// handler wraps the router with CORS and preflight handling.
func (s *Server) handler() http.Handler {
	router := s.Router()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		router.ServeHTTP(w, r)
	})
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Infof("[gateway] listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("[gateway] server error: %v", err)
		}
	}()
}

// Shutdown disconnects every client and stops the listener.
func (s *Server) Shutdown(ctx context.Context) {
	for _, c := range s.clientList() {
		c.close()
	}
	s.srv.Shutdown(ctx)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("[gateway] ws upgrade failed: %v", err)
		return
	}
	c := newClient(s, conn)
	s.addClient(c)
	log.Infof("[gateway] client %s connected from %s", c.id, conn.RemoteAddr())

	go c.writePump()
	go c.readPump()
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	if s.met != nil {
		s.met.WSClients.Set(float64(n))
	}
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	if s.met != nil {
		s.met.WSClients.Set(float64(n))
	}
}

func (s *Server) clientList() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// broadcast queues one frame on every connected client.
func (s *Server) broadcast(buf []byte) {
	for _, c := range s.clientList() {
		c.enqueue(buf)
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}
