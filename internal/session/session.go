// Package session provides the trading-session clock that drives VWAP resets
// and gap evaluation. A session is identified by the trading day that opened
// it; every instant maps to the most recently opened session, so off-hours
// ticks attach to the prior session instead of corrupting a fresh one.
package session

import (
	"fmt"
	"time"
)

// Clock tells the pipeline which trading session an instant belongs to.
type Clock interface {
	// SessionID returns a stable identifier for the session covering t.
	// Returns "" only when no session can be resolved.
	SessionID(t time.Time) string

	// IsOpen reports whether trading is active at t.
	IsOpen(t time.Time) bool

	// NextOpen returns the start of the next session strictly after t's open.
	NextOpen(t time.Time) time.Time
}

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// NSE cash market hours in IST.
const (
	openHour    = 9
	openMinute  = 15
	closeHour   = 15
	closeMinute = 30
)

// NSEClock maps instants to NSE cash sessions (9:15–15:30 IST, Mon–Fri,
// excluding exchange holidays).
type NSEClock struct{}

// NewNSE returns the NSE session clock.
func NewNSE() *NSEClock { return &NSEClock{} }

// IsOpen returns true if t falls within NSE trading hours.
func (c *NSEClock) IsOpen(t time.Time) bool {
	ist := t.In(IST)
	if !isTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= openHour*60+openMinute && hm < closeHour*60+closeMinute
}

// SessionID returns the trading day (IST, "2006-01-02") of the most recent
// session whose open is at or before t.
func (c *NSEClock) SessionID(t time.Time) string {
	ist := t.In(IST)
	d := ist
	for i := 0; i < 14; i++ {
		if isTradingDay(d) {
			open := time.Date(d.Year(), d.Month(), d.Day(), openHour, openMinute, 0, 0, IST)
			if !ist.Before(open) {
				return open.Format("2006-01-02")
			}
		}
		d = d.AddDate(0, 0, -1)
		// After stepping back a day, any trading day qualifies regardless
		// of time-of-day; normalize to end of day.
		d = time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 0, 0, IST)
	}
	return ""
}

// NextOpen returns the next session open (9:15 IST on the next trading day,
// or today's open if t is before it on a trading day).
func (c *NSEClock) NextOpen(t time.Time) time.Time {
	ist := t.In(IST)

	todayOpen := time.Date(ist.Year(), ist.Month(), ist.Day(), openHour, openMinute, 0, 0, IST)
	if ist.Before(todayOpen) && isTradingDay(ist) {
		return todayOpen
	}

	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ {
		if isTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), openHour, openMinute, 0, 0, IST)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(ist.Year(), ist.Month(), ist.Day()+1, openHour, openMinute, 0, 0, IST)
}

// TodayClose returns the close time (15:30 IST) for t's calendar day.
func (c *NSEClock) TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), closeHour, closeMinute, 0, 0, IST)
}

// StatusString returns a human-readable market status for health endpoints.
func (c *NSEClock) StatusString(t time.Time) string {
	if c.IsOpen(t) {
		d := c.TodayClose(t).Sub(t.In(IST))
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(d))
	}
	next := c.NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("Market Closed — opens %s %s (%s)",
		ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func isTradingDay(t time.Time) bool {
	wd := t.In(IST).Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !isHoliday(t)
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// AlwaysOpenClock treats every UTC calendar day as one session. Used for
// replay runs and the 24h demo feed where exchange hours don't apply.
type AlwaysOpenClock struct{}

// NewAlwaysOpen returns the always-open session clock.
func NewAlwaysOpen() *AlwaysOpenClock { return &AlwaysOpenClock{} }

func (c *AlwaysOpenClock) SessionID(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (c *AlwaysOpenClock) IsOpen(time.Time) bool { return true }

func (c *AlwaysOpenClock) NextOpen(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// ForMode returns the clock for a config session mode ("nse" or "always").
func ForMode(mode string) Clock {
	if mode == "always" {
		return NewAlwaysOpen()
	}
	return NewNSE()
}
