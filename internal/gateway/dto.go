package gateway

import (
	"screener-stream/config"
	"screener-stream/internal/model"
)

// Inbound frame types. Anything else earns an ERROR. Transport-level
// liveness is handled with ping/pong control frames, not JSON.
const (
	msgSubscribe   = "SUBSCRIBE"
	msgUnsubscribe = "UNSUBSCRIBE"
)

// ClientMsg is the single inbound WS frame shape. Symbol is an equity
// symbol or "*" for the screener-wide channel; ReqID is echoed back on
// the matching ack or error so clients can correlate.
type ClientMsg struct {
	Type   string `json:"type"`
	ReqID  string `json:"reqId,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// SubscribedMsg acks a SUBSCRIBE. It carries current state so the
// client can render immediately instead of waiting for the next tick:
// Snapshot for a single-symbol channel (absent until the symbol has
// ticked), Stocks for the screener channel.
type SubscribedMsg struct {
	Type     string                `json:"type"` // "SUBSCRIBED"
	ReqID    string                `json:"reqId,omitempty"`
	Symbol   string                `json:"symbol"`
	Snapshot *model.StockSnapshot  `json:"snapshot,omitempty"`
	Stocks   []model.StockSnapshot `json:"stocks,omitempty"`
}

// UnsubscribedMsg acks an UNSUBSCRIBE.
type UnsubscribedMsg struct {
	Type   string `json:"type"` // "UNSUBSCRIBED"
	ReqID  string `json:"reqId,omitempty"`
	Symbol string `json:"symbol"`
}

// UpdateMsg is the per-tick frame on a single-symbol channel.
type UpdateMsg struct {
	Type     string              `json:"type"` // "UPDATE"
	Symbol   string              `json:"symbol"`
	Snapshot model.StockSnapshot `json:"snapshot"`
	Signal   model.Signal        `json:"signal"`
	Alerts   []model.Alert       `json:"alerts,omitempty"`
}

// ScreenerMsg is the per-changed-symbol frame on the screener channel.
// UpdatedFields names what moved since the symbol's previous update;
// the full snapshot rides along so rows rebuild without a round trip.
type ScreenerMsg struct {
	Type          string              `json:"type"` // "SCREENER"
	Symbol        string              `json:"symbol"`
	UpdatedFields []string            `json:"updatedFields"`
	Snapshot      model.StockSnapshot `json:"snapshot"`
	Alerts        []model.Alert       `json:"alerts,omitempty"`
}

// SettingsMsg is pushed to every connected client when the runtime
// thresholds change, so open dashboards reflect the active tunables.
type SettingsMsg struct {
	Type     string            `json:"type"` // "SETTINGS"
	Settings config.Thresholds `json:"settings"`
}

// ErrorMsg reports a rejected inbound frame.
type ErrorMsg struct {
	Type  string `json:"type"` // "ERROR"
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// StocksQuery is the decoded /api/stocks query string.
type StocksQuery struct {
	Q         string  `schema:"q"`
	MinGap    float64 `schema:"minGap"`
	MinVolume int64   `schema:"minVolume"`
	Limit     int     `schema:"limit"`
}

// StockListResponse is the /api/stocks payload.
type StockListResponse struct {
	Stocks []model.StockSnapshot `json:"stocks"`
	Count  int                   `json:"count"`
	TS     string                `json:"ts"`
}

// StockDetailResponse is the /api/stocks/{symbol} payload: the latest
// snapshot plus the closes still held by the rolling window.
type StockDetailResponse struct {
	Stock  model.StockSnapshot `json:"stock"`
	Closes []float64           `json:"closes"`
}

// AlertListResponse is the /api/alerts payload, newest first.
type AlertListResponse struct {
	Alerts []model.Alert `json:"alerts"`
	Count  int           `json:"count"`
}

// WatchlistResponse is the /api/watchlist payload.
type WatchlistResponse struct {
	Symbols []string `json:"symbols"`
}

// StatsResponse is the /api/stats payload: process and delivery-path
// counters for dashboards that don't scrape Prometheus.
type StatsResponse struct {
	UptimeSec    int64   `json:"uptimeSec"`
	Goroutines   int     `json:"goroutines"`
	HeapAllocMB  float64 `json:"heapAllocMb"`
	Symbols      int     `json:"symbols"`
	Subscribers  int     `json:"subscribers"`
	WSClients    int     `json:"wsClients"`
	QueueDrops   uint64  `json:"queueDrops"`
	LatencyP50Ms float64 `json:"latencyP50Ms"`
	LatencyP95Ms float64 `json:"latencyP95Ms"`
	LatencyP99Ms float64 `json:"latencyP99Ms"`
	TS           string  `json:"ts"`
}

type apiError struct {
	Error string `json:"error"`
}
