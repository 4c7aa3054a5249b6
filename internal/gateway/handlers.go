package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"

	"screener-stream/internal/model"
)

const (
	defaultStockLimit = 20
	maxDetailCloses   = 200
	alertLimitCap     = 100
)

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// handleStocks serves the screener list: live snapshots filtered by the
// query, watchlist pins first, the rest by |gap| descending.
func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	var q StocksQuery
	if err := queryDecoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad query: %v", err))
		return
	}

	rows := s.screenerRows(q)
	writeJSON(w, http.StatusOK, StockListResponse{
		Stocks: rows,
		Count:  len(rows),
		TS:     time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// screenerRows applies filters, then orders: pinned symbols first, then
// |gap| descending with gapless symbols last. Filters apply to pins
// too; pinning only affects order.
func (s *Server) screenerRows(q StocksQuery) []model.StockSnapshot {
	all := s.snaps.Latest()
	needle := normalizeSymbol(q.Q)

	rows := make([]model.StockSnapshot, 0, len(all))
	for _, snap := range all {
		if needle != "" && !strings.Contains(snap.Symbol, needle) {
			continue
		}
		if q.MinGap > 0 && (snap.GapPct == nil || math.Abs(*snap.GapPct) < q.MinGap) {
			continue
		}
		if q.MinVolume > 0 && snap.Volume < q.MinVolume {
			continue
		}
		rows = append(rows, snap)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		pi, pj := s.watch.Has(rows[i].Symbol), s.watch.Has(rows[j].Symbol)
		if pi != pj {
			return pi
		}
		return absGap(rows[i]) > absGap(rows[j])
	})

	limit := q.Limit
	if limit <= 0 {
		limit = defaultStockLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// absGap orders snapshots by gap magnitude; -1 puts gapless symbols
// after every real gap.
func absGap(s model.StockSnapshot) float64 {
	if s.GapPct == nil {
		return -1
	}
	return math.Abs(*s.GapPct)
}

func (s *Server) handleStockDetail(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(mux.Vars(r)["symbol"])
	snap, ok := s.snaps.LatestFor(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown symbol %s", symbol))
		return
	}
	writeJSON(w, http.StatusOK, StockDetailResponse{
		Stock:  snap,
		Closes: s.snaps.ClosesFor(symbol, maxDetailCloses),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert history not configured")
		return
	}

	limit := alertLimitCap
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if v < limit {
			limit = v
		}
	}

	alerts, err := s.alerts.Recent(r.Context(), limit)
	if err != nil {
		log.Errorf("[gateway] alert history read failed: %v", err)
		writeError(w, http.StatusInternalServerError, "alert history read failed")
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, AlertListResponse{Alerts: alerts, Count: len(alerts)})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Get())
}

// handlePutSettings swaps the active thresholds. The payload decodes
// onto the current snapshot, so absent fields keep their values and a
// partial update works. Connected WS clients get a SETTINGS push.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	t := s.settings.Get()
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad settings payload: %v", err))
		return
	}
	if err := s.settings.Set(t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	applied := s.settings.Get()
	log.Infof("[gateway] settings updated: gap=%.2f%% rsi=%.0f/%.0f cooldown=%ds",
		applied.GapPct, applied.RSIOversold, applied.RSIOverbought, applied.CooldownSeconds)

	if buf, err := json.Marshal(SettingsMsg{Type: "SETTINGS", Settings: applied}); err == nil {
		s.broadcast(buf)
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, WatchlistResponse{Symbols: s.watch.List()})
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(mux.Vars(r)["symbol"])
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	if s.watch.Add(symbol) {
		log.Infof("[gateway] watchlist add %s", symbol)
	}
	writeJSON(w, http.StatusOK, WatchlistResponse{Symbols: s.watch.List()})
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	symbol := normalizeSymbol(mux.Vars(r)["symbol"])
	if !s.watch.Remove(symbol) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%s not on watchlist", symbol))
		return
	}
	log.Infof("[gateway] watchlist remove %s", symbol)
	writeJSON(w, http.StatusOK, WatchlistResponse{Symbols: s.watch.List()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	p50, p95, p99 := s.latency.Percentiles()

	s.mu.Lock()
	nClients := len(s.clients)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, StatsResponse{
		UptimeSec:    int64(time.Since(s.startedAt).Seconds()),
		Goroutines:   runtime.NumGoroutine(),
		HeapAllocMB:  float64(ms.HeapAlloc) / 1024 / 1024,
		Symbols:      s.snaps.Symbols(),
		Subscribers:  s.hub.Subscribers(),
		WSClients:    nClients,
		QueueDrops:   s.hub.Drops(),
		LatencyP50Ms: p50,
		LatencyP95Ms: p95,
		LatencyP99Ms: p99,
		TS:           time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("[gateway] response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}
