package window

// State is the serializable form of a Window, used by engine checkpoints.
// Closes are ordered oldest → newest.
type State struct {
	Closes     []float64 `json:"closes"`
	DeltaCount int       `json:"delta_count"`
	GainSum    float64   `json:"gain_sum"`
	LossSum    float64   `json:"loss_sum"`
	AvgGain    float64   `json:"avg_gain"`
	AvgLoss    float64   `json:"avg_loss"`
	PVSum      float64   `json:"pv_sum"`
	VolSum     int64     `json:"vol_sum"`
}

// Snapshot captures the window state for persistence.
func (w *Window) Snapshot() State {
	return State{
		Closes:     w.Closes(w.count),
		DeltaCount: w.deltaCount,
		GainSum:    w.gainSum,
		LossSum:    w.lossSum,
		AvgGain:    w.avgGain,
		AvgLoss:    w.avgLoss,
		PVSum:      w.pvSum,
		VolSum:     w.volSum,
	}
}

// Restore rebuilds a window from a saved state. Trailing sums are recomputed
// by replaying the closes (restore runs off the hot path); Wilder and VWAP
// state are taken directly from the snapshot.
func Restore(s State) *Window {
	w := New()
	closes := s.Closes
	if len(closes) > Capacity {
		closes = closes[len(closes)-Capacity:]
	}
	for _, c := range closes {
		w.pushClose(c)
	}
	w.deltaCount = s.DeltaCount
	w.gainSum = s.GainSum
	w.lossSum = s.LossSum
	w.avgGain = s.AvgGain
	w.avgLoss = s.AvgLoss
	w.pvSum = s.PVSum
	w.volSum = s.VolSum
	return w
}
