package model

import "time"

// Tick represents a single price event from the market-data feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume int64     `json:"volume"` // quantity traded at this price
	TS     time.Time `json:"ts"`     // UTC timestamp
}

// Valid reports whether the tick is well-formed enough to enter the pipeline.
// Retrograde ordering is checked downstream where per-symbol state lives.
func (t *Tick) Valid() bool {
	return t.Symbol != "" && t.Price > 0 && !t.TS.IsZero()
}
