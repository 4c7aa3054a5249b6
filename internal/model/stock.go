package model

import (
	"encoding/json"
	"time"
)

// StockSnapshot is the externally visible per-symbol view served over REST
// and pushed to subscribers. PrevClose, ChangePct and GapPct stay nil until a
// previous-session close is known for the symbol.
type StockSnapshot struct {
	Symbol     string            `json:"symbol"`
	Price      float64           `json:"price"`
	Open       float64           `json:"open"` // first trade of the current session
	High       float64           `json:"high"`
	Low        float64           `json:"low"`
	PrevClose  *float64          `json:"prevClose,omitempty"`
	ChangePct  *float64          `json:"changePct,omitempty"`
	GapPct     *float64          `json:"gapPct,omitempty"`
	Volume     int64             `json:"volume"` // cumulative session volume
	Indicators IndicatorSnapshot `json:"indicators"`
	Signal     Signal            `json:"signal"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// JSON returns the encoded snapshot (errors ignored for hot-path usage).
func (s *StockSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
