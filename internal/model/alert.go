package model

import "time"

// AlertType identifies one of the alert conditions evaluated per tick.
type AlertType string

const (
	AlertBBUpperCross  AlertType = "bb_upper_cross" // close crossed above the upper Bollinger band
	AlertBBLowerCross  AlertType = "bb_lower_cross" // close crossed below the lower Bollinger band
	AlertRSIOverbought AlertType = "rsi_overbought" // RSI entered overbought territory
	AlertRSIOversold   AlertType = "rsi_oversold"   // RSI entered oversold territory
	AlertGap           AlertType = "gap"            // session open gapped beyond the threshold
)

// AlertTypes lists every evaluated type, in evaluation order.
var AlertTypes = []AlertType{
	AlertBBUpperCross,
	AlertBBLowerCross,
	AlertRSIOverbought,
	AlertRSIOversold,
	AlertGap,
}

// Severity classifies an alert for sinks and subscribers.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

// Alert is emitted each time a condition newly fires for a symbol. Alerts are
// values, not mutable state: the detector's internal machines own the
// fired/idle bookkeeping.
type Alert struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Value    float64   `json:"value"` // condition value at fire time (close, RSI or gap %)
	TS       time.Time `json:"ts"`
}
