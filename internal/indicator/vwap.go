package indicator

import "screener-stream/internal/window"

// VWAP returns the volume-weighted average price over the current trading
// session. Undefined until the session has traded volume.
func VWAP(w *window.Window) (float64, bool) {
	pv, vol := w.SessionSums()
	if vol <= 0 {
		return 0, false
	}
	return pv / float64(vol), true
}
