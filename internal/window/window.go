// Package window implements the per-symbol rolling window of recent closes
// plus the incrementally maintained aggregates every indicator is derived
// from. All maintenance is O(1) amortized per tick: trailing sums are
// adjusted by subtracting the value that falls out of each period, never by
// re-summing the window.
package window

import (
	"screener-stream/internal/model"
)

const (
	// Capacity is the longest indicator period; the window never needs to
	// hold more closes than this.
	Capacity = 200

	// RSIPeriod is the Wilder smoothing period.
	RSIPeriod = 14

	// Trailing periods with maintained running sums.
	PeriodShort = 20
	PeriodMid   = 50
	PeriodLong  = 200
)

// Window owns one symbol's close history and aggregates. Not safe for
// concurrent use: exactly one ingestion path mutates a given symbol's window.
type Window struct {
	buf   [Capacity]float64
	idx   int // next write position
	count int // closes currently held (≤ Capacity)

	sumShort   float64
	sumSqShort float64
	sumMid     float64
	sumLong    float64

	// Wilder RSI state. During accumulation (deltaCount < RSIPeriod) gains
	// and losses are summed; at deltaCount == RSIPeriod the averages seed
	// from the simple mean and smoothing takes over.
	deltaCount int
	gainSum    float64
	lossSum    float64
	avgGain    float64
	avgLoss    float64

	// Session VWAP accumulators, cleared by ResetSession.
	pvSum  float64
	volSum int64
}

// New returns an empty window.
func New() *Window {
	return &Window{}
}

// Ingest appends a bar's close and updates every aggregate. When the buffer
// is full the oldest close is evicted FIFO; its contribution leaves the
// trailing sums via the per-period subtractions below.
func (w *Window) Ingest(bar model.PriceBar) {
	c := bar.Close

	// Wilder gain/loss from the delta against the previous close.
	if w.count > 0 {
		w.updateWilder(c - w.at(0))
	}

	w.pushClose(c)

	w.pvSum += c * float64(bar.Volume)
	w.volSum += bar.Volume
}

// pushClose inserts a close into the circular buffer and maintains the
// trailing sums. Split out so checkpoint restore can rebuild sums by
// replaying closes.
func (w *Window) pushClose(c float64) {
	// Values falling out of each trailing period.
	if w.count >= PeriodShort {
		old := w.at(PeriodShort - 1)
		w.sumShort -= old
		w.sumSqShort -= old * old
	}
	if w.count >= PeriodMid {
		w.sumMid -= w.at(PeriodMid - 1)
	}
	if w.count >= PeriodLong {
		w.sumLong -= w.at(PeriodLong - 1)
	}
	w.sumShort += c
	w.sumSqShort += c * c
	w.sumMid += c
	w.sumLong += c

	w.buf[w.idx] = c
	w.idx = (w.idx + 1) % Capacity
	if w.count < Capacity {
		w.count++
	}
}

func (w *Window) updateWilder(delta float64) {
	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	w.deltaCount++
	if w.deltaCount <= RSIPeriod {
		w.gainSum += gain
		w.lossSum += loss
		if w.deltaCount == RSIPeriod {
			w.avgGain = w.gainSum / RSIPeriod
			w.avgLoss = w.lossSum / RSIPeriod
		}
		return
	}

	w.avgGain = (w.avgGain*(RSIPeriod-1) + gain) / RSIPeriod
	w.avgLoss = (w.avgLoss*(RSIPeriod-1) + loss) / RSIPeriod
}

// at returns the close k ticks back (0 = most recent). Caller guarantees
// k < w.count.
func (w *Window) at(k int) float64 {
	return w.buf[((w.idx-1-k)%Capacity+Capacity)%Capacity]
}

// Len returns the number of closes currently held.
func (w *Window) Len() int { return w.count }

// LastClose returns the most recent close.
func (w *Window) LastClose() (float64, bool) {
	if w.count == 0 {
		return 0, false
	}
	return w.at(0), true
}

// PrevClose returns the close before the most recent one.
func (w *Window) PrevClose() (float64, bool) {
	if w.count < 2 {
		return 0, false
	}
	return w.at(1), true
}

// TrailingSum returns the running sum over the last `period` closes for a
// maintained period. ok is false until the window holds a full period.
func (w *Window) TrailingSum(period int) (sum float64, ok bool) {
	if w.count < period {
		return 0, false
	}
	switch period {
	case PeriodShort:
		return w.sumShort, true
	case PeriodMid:
		return w.sumMid, true
	case PeriodLong:
		return w.sumLong, true
	}
	return 0, false
}

// TrailingSumSq returns the running sum of squares over the last PeriodShort
// closes (the stddev window).
func (w *Window) TrailingSumSq() (sumSq float64, ok bool) {
	if w.count < PeriodShort {
		return 0, false
	}
	return w.sumSqShort, true
}

// WilderAvgs returns the smoothed average gain/loss pair. ok is false until
// RSIPeriod deltas have been consumed.
func (w *Window) WilderAvgs() (avgGain, avgLoss float64, ok bool) {
	if w.deltaCount < RSIPeriod {
		return 0, 0, false
	}
	return w.avgGain, w.avgLoss, true
}

// SessionSums returns the VWAP accumulators for the current session.
func (w *Window) SessionSums() (pvSum float64, volSum int64) {
	return w.pvSum, w.volSum
}

// ResetSession clears the session-scoped accumulators. Close history and RSI
// state carry across sessions.
func (w *Window) ResetSession() {
	w.pvSum = 0
	w.volSum = 0
}

// Closes returns up to n most recent closes, oldest first.
func (w *Window) Closes(n int) []float64 {
	if n > w.count {
		n = w.count
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = w.at(i)
	}
	return out
}
