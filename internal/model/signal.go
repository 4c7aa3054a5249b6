package model

// Direction is the trading stance derived from the current indicator state.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Signal is the derived trading signal for a symbol. Entry, StopLoss and
// Target are present only for BUY/SELL — a HOLD carries none of them
// (absent, not zero).
type Signal struct {
	Direction Direction `json:"direction"`
	Entry     *float64  `json:"entry,omitempty"`
	StopLoss  *float64  `json:"stopLoss,omitempty"`
	Target    *float64  `json:"target,omitempty"`
}

// Hold is the neutral signal.
func Hold() Signal {
	return Signal{Direction: DirectionHold}
}

// Equal reports whether two signals carry the same direction and levels.
func (s Signal) Equal(o Signal) bool {
	if s.Direction != o.Direction {
		return false
	}
	return eqPtr(s.Entry, o.Entry) && eqPtr(s.StopLoss, o.StopLoss) && eqPtr(s.Target, o.Target)
}
