package model

import "time"

// PriceBar is one sampling interval of price action for a symbol.
// For intraday streaming the feed delivers one close per tick, so a bar
// usually carries open == high == low == close == the tick price.
type PriceBar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// BarFromTick builds the single-tick bar shape used on the streaming path.
func BarFromTick(t Tick) PriceBar {
	return PriceBar{
		TS:     t.TS,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: t.Volume,
	}
}
