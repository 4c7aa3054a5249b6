package indicator

import (
	"math"

	"screener-stream/internal/window"
)

// StdDev returns the sample standard deviation (N−1 divisor) of the last 20
// closes, derived from the window's running sum and sum-of-squares.
func StdDev(w *window.Window) (float64, bool) {
	sum, ok := w.TrailingSum(window.PeriodShort)
	if !ok {
		return 0, false
	}
	sumSq, _ := w.TrailingSumSq()

	n := float64(window.PeriodShort)
	mean := sum / n
	variance := (sumSq - n*mean*mean) / (n - 1)
	if variance < 0 {
		// guard against tiny negative drift from the running sums
		variance = 0
	}
	return math.Sqrt(variance), true
}

// Bollinger returns the 20-period bands at BBMult sample standard deviations
// around SMA20.
func Bollinger(w *window.Window) (upper, lower float64, ok bool) {
	mid, ok := SMA(w, window.PeriodShort)
	if !ok {
		return 0, 0, false
	}
	sd, _ := StdDev(w)
	return mid + BBMult*sd, mid - BBMult*sd, true
}
