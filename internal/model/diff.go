package model

// ChangedFields lists the JSON field names of s that differ from prev, in
// declaration order. A nil prev marks everything as changed. UpdatedAt is
// excluded: it moves on every tick and carries no screener-visible state.
func (s *StockSnapshot) ChangedFields(prev *StockSnapshot) []string {
	if prev == nil {
		prev = &StockSnapshot{}
	}
	var out []string
	add := func(name string, changed bool) {
		if changed {
			out = append(out, name)
		}
	}

	add("price", s.Price != prev.Price)
	add("open", s.Open != prev.Open)
	add("high", s.High != prev.High)
	add("low", s.Low != prev.Low)
	add("prevClose", !eqPtr(s.PrevClose, prev.PrevClose))
	add("changePct", !eqPtr(s.ChangePct, prev.ChangePct))
	add("gapPct", !eqPtr(s.GapPct, prev.GapPct))
	add("volume", s.Volume != prev.Volume)

	add("rsi14", !eqPtr(s.Indicators.RSI14, prev.Indicators.RSI14))
	add("ma20", !eqPtr(s.Indicators.MA20, prev.Indicators.MA20))
	add("ma50", !eqPtr(s.Indicators.MA50, prev.Indicators.MA50))
	add("ma200", !eqPtr(s.Indicators.MA200, prev.Indicators.MA200))
	add("bbUpper", !eqPtr(s.Indicators.BBUpper, prev.Indicators.BBUpper))
	add("bbLower", !eqPtr(s.Indicators.BBLower, prev.Indicators.BBLower))
	add("vwap", !eqPtr(s.Indicators.VWAP, prev.Indicators.VWAP))

	add("signal", !s.Signal.Equal(prev.Signal))
	return out
}

func eqPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
