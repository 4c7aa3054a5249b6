package indicator

import "screener-stream/internal/window"

// RSI returns the 14-period Relative Strength Index from the window's Wilder
// averages. By Wilder convention RSI is 100 when the average loss is zero
// (covers the all-gains and perfectly-flat cases).
func RSI(w *window.Window) (float64, bool) {
	avgGain, avgLoss, ok := w.WilderAvgs()
	if !ok {
		return 0, false
	}
	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
