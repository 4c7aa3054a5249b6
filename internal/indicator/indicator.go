// Package indicator derives indicator values from a symbol's rolling window.
// Every function here is a pure read over the window's maintained aggregates;
// nothing mutates window state during calculation. Values are undefined
// (ok == false) until the full period backs them.
package indicator

import (
	"screener-stream/internal/model"
	"screener-stream/internal/window"
)

// BBMult is the Bollinger band width in standard deviations.
const BBMult = 2.0

// Compute assembles the full indicator snapshot for a window. Undefined
// values stay nil in the snapshot.
func Compute(w *window.Window) model.IndicatorSnapshot {
	var snap model.IndicatorSnapshot

	if v, ok := RSI(w); ok {
		snap.RSI14 = &v
	}
	if v, ok := SMA(w, window.PeriodShort); ok {
		snap.MA20 = &v
	}
	if v, ok := SMA(w, window.PeriodMid); ok {
		snap.MA50 = &v
	}
	if v, ok := SMA(w, window.PeriodLong); ok {
		snap.MA200 = &v
	}
	if upper, lower, ok := Bollinger(w); ok {
		snap.BBUpper = &upper
		snap.BBLower = &lower
	}
	if v, ok := VWAP(w); ok {
		snap.VWAP = &v
	}
	return snap
}
