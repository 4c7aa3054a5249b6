// Package signal derives trade signals from indicator snapshots.
//
// Buy: RSI14 below the oversold threshold while the close sits at or
// below the lower Bollinger band.
// Sell: RSI14 above the overbought threshold while the close sits at or
// above the upper band.
// Everything else, including any undefined input, is a hold.
package signal

import (
	"screener-stream/config"
	"screener-stream/internal/model"
)

// Evaluate applies the rule table to the latest close. Hold signals
// carry no price levels.
func Evaluate(close float64, ind model.IndicatorSnapshot, th config.Thresholds) model.Signal {
	if ind.RSI14 == nil || ind.BBUpper == nil || ind.BBLower == nil {
		return model.Hold()
	}

	switch {
	case *ind.RSI14 < th.RSIOversold && close <= *ind.BBLower:
		return priced(model.DirectionBuy, close, th)
	case *ind.RSI14 > th.RSIOverbought && close >= *ind.BBUpper:
		return priced(model.DirectionSell, close, th)
	default:
		return model.Hold()
	}
}

// priced attaches entry, stop loss and target to a buy or sell.
// Stops sit against the trade direction, targets with it.
func priced(dir model.Direction, entry float64, th config.Thresholds) model.Signal {
	var sl, target float64
	if dir == model.DirectionBuy {
		sl = entry * (1 - th.RiskPct)
		target = entry * (1 + th.RewardPct)
	} else {
		sl = entry * (1 + th.RiskPct)
		target = entry * (1 - th.RewardPct)
	}
	return model.Signal{
		Direction: dir,
		Entry:     &entry,
		StopLoss:  &sl,
		Target:    &target,
	}
}
