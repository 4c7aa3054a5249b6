package model

// IndicatorSnapshot holds the derived indicator values for one symbol at one
// point in time. Nil means the indicator is not yet defined (insufficient
// window history) — callers must treat that distinctly from zero. Snapshots
// are immutable once produced and replaced wholesale on each tick.
type IndicatorSnapshot struct {
	RSI14   *float64 `json:"rsi14,omitempty"`
	MA20    *float64 `json:"ma20,omitempty"`
	MA50    *float64 `json:"ma50,omitempty"`
	MA200   *float64 `json:"ma200,omitempty"`
	BBUpper *float64 `json:"bbUpper,omitempty"`
	BBLower *float64 `json:"bbLower,omitempty"`
	VWAP    *float64 `json:"vwap,omitempty"`
}
