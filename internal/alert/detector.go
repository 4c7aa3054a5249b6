// Package alert turns indicator snapshots into edge-triggered alerts.
//
// Each (symbol, type) pair runs a small state machine: an alert fires
// only when its condition flips from clear to breached. While breached
// the condition stays silent until it clears and breaches again. A
// cooldown window after each fire swallows re-triggers of the same
// pair; those transitions still consume the edge.
package alert

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"screener-stream/config"
	"screener-stream/internal/model"
)

type condState struct {
	breached  bool
	lastFired time.Time
}

// Detector owns the alert state for one symbol. It is driven from a
// single goroutine and needs no locking.
type Detector struct {
	symbol   string
	states   map[model.AlertType]*condState
	gapArmed bool
}

func NewDetector(symbol string) *Detector {
	return &Detector{
		symbol:   symbol,
		states:   make(map[model.AlertType]*condState),
		gapArmed: true,
	}
}

// Evaluate checks the band and RSI conditions against the latest close.
// It returns the alerts that fired this tick, at most one per type, and
// the number of transitions swallowed by cooldown.
func (d *Detector) Evaluate(now time.Time, close float64, ind model.IndicatorSnapshot, th config.Thresholds) ([]model.Alert, int) {
	var fired []model.Alert
	suppressed := 0

	emit := func(t model.AlertType, active bool, value float64, msg string) {
		a, cooled := d.transition(t, active, value, msg, now, th)
		if a != nil {
			fired = append(fired, *a)
		}
		if cooled {
			suppressed++
		}
	}

	if ind.BBUpper != nil && ind.BBLower != nil {
		emit(model.AlertBBUpperCross, close > *ind.BBUpper, close,
			fmt.Sprintf("close %.2f crossed above upper band %.2f", close, *ind.BBUpper))
		emit(model.AlertBBLowerCross, close < *ind.BBLower, close,
			fmt.Sprintf("close %.2f crossed below lower band %.2f", close, *ind.BBLower))
	} else {
		d.clear(model.AlertBBUpperCross)
		d.clear(model.AlertBBLowerCross)
	}

	if ind.RSI14 != nil {
		emit(model.AlertRSIOverbought, *ind.RSI14 > th.RSIOverbought, *ind.RSI14,
			fmt.Sprintf("RSI14 %.1f above %.1f", *ind.RSI14, th.RSIOverbought))
		emit(model.AlertRSIOversold, *ind.RSI14 < th.RSIOversold, *ind.RSI14,
			fmt.Sprintf("RSI14 %.1f below %.1f", *ind.RSI14, th.RSIOversold))
	} else {
		d.clear(model.AlertRSIOverbought)
		d.clear(model.AlertRSIOversold)
	}

	return fired, suppressed
}

// EvaluateGap fires the gap alert for a fresh session when the open
// moved at least the configured percentage from the prior session
// close. It fires at most once per session; ArmGap re-arms it on
// rollover.
func (d *Detector) EvaluateGap(now time.Time, gapPct float64, th config.Thresholds) *model.Alert {
	if !d.gapArmed {
		return nil
	}
	d.gapArmed = false

	if gapPct < th.GapPct && gapPct > -th.GapPct {
		return nil
	}
	a, _ := d.fire(model.AlertGap, gapPct,
		fmt.Sprintf("opened %+.2f%% against previous session close", gapPct), now, th)
	return a
}

// ArmGap re-arms the gap check. Called on session rollover.
func (d *Detector) ArmGap() { d.gapArmed = true }

func (d *Detector) state(t model.AlertType) *condState {
	st, ok := d.states[t]
	if !ok {
		st = &condState{}
		d.states[t] = st
	}
	return st
}

func (d *Detector) clear(t model.AlertType) {
	d.state(t).breached = false
}

// transition advances one condition's state machine and reports the
// fired alert, if any, and whether a fire was swallowed by cooldown.
func (d *Detector) transition(t model.AlertType, active bool, value float64, msg string, now time.Time, th config.Thresholds) (*model.Alert, bool) {
	st := d.state(t)
	edge := active && !st.breached
	st.breached = active
	if !edge {
		return nil, false
	}
	return d.fire(t, value, msg, now, th)
}

func (d *Detector) fire(t model.AlertType, value float64, msg string, now time.Time, th config.Thresholds) (*model.Alert, bool) {
	st := d.state(t)
	if !st.lastFired.IsZero() && now.Sub(st.lastFired) < th.Cooldown() {
		return nil, true
	}
	st.lastFired = now
	return &model.Alert{
		ID:       uuid.NewString(),
		Symbol:   d.symbol,
		Type:     t,
		Severity: model.Severity(th.SeverityFor(string(t))),
		Message:  msg,
		Value:    value,
		TS:       now,
	}, false
}
