package indicator

import "screener-stream/internal/window"

// SMA returns the simple moving average over the last `period` closes for
// one of the window's maintained periods (20, 50, 200). Undefined until the
// window holds a full period.
func SMA(w *window.Window, period int) (float64, bool) {
	sum, ok := w.TrailingSum(period)
	if !ok {
		return 0, false
	}
	return sum / float64(period), true
}
