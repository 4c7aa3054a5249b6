package engine

import (
	"sync"
	"time"

	"screener-stream/internal/alert"
	"screener-stream/internal/indicator"
	"screener-stream/internal/model"
	"screener-stream/internal/signal"
	"screener-stream/internal/window"
)

// worker processes one symbol's ticks in order. Its mutex covers the
// window and session bookkeeping so checkpoint snapshots can read a
// consistent view; the tick path holds it uncontended.
type worker struct {
	eng    *Engine
	symbol string
	in     chan model.Tick

	mu        sync.Mutex
	win       *window.Window
	det       *alert.Detector
	sessionID string
	prevClose *float64
	gapPct    *float64
	dayOpen   float64
	dayHigh   float64
	dayLow    float64
	lastTS    time.Time
	last      model.StockSnapshot
	hasLast   bool
}

func newWorker(e *Engine, symbol string) *worker {
	return &worker{
		eng:    e,
		symbol: symbol,
		in:     make(chan model.Tick, e.cfg.WorkerBuffer),
		win:    window.New(),
		det:    alert.NewDetector(symbol),
	}
}

func (w *worker) run() {
	for t := range w.in {
		if u, ok := w.process(t); ok {
			w.eng.publish(u)
		}
	}
}

// process applies one tick: session accounting, window ingest, indicator
// and signal evaluation, alert detection, snapshot diffing.
func (w *worker) process(t model.Tick) (model.Update, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	start := time.Now()

	// Out-of-order ticks are rejected, not reordered: the window's
	// aggregates are order-sensitive.
	if !w.lastTS.IsZero() && t.TS.Before(w.lastTS) {
		w.eng.met.TicksRejected.WithLabelValues("retrograde").Inc()
		return model.Update{}, false
	}
	w.lastTS = t.TS

	th := w.eng.th.Get()
	var alerts []model.Alert

	sid := w.eng.clock.SessionID(t.TS)
	if sid != w.sessionID {
		if w.sessionID != "" {
			w.eng.met.SessionRollovers.Inc()
		}
		if c, ok := w.win.LastClose(); ok {
			pc := c
			w.prevClose = &pc
		}
		w.win.ResetSession()
		w.det.ArmGap()
		w.sessionID = sid
		w.dayOpen = t.Price
		w.dayHigh = t.Price
		w.dayLow = t.Price
		w.gapPct = nil

		if w.prevClose != nil {
			g := (t.Price - *w.prevClose) / *w.prevClose * 100
			w.gapPct = &g
			if a := w.det.EvaluateGap(t.TS, g, th); a != nil {
				alerts = append(alerts, *a)
			}
		}
	} else {
		if t.Price > w.dayHigh {
			w.dayHigh = t.Price
		}
		if t.Price < w.dayLow {
			w.dayLow = t.Price
		}
	}

	w.win.Ingest(model.BarFromTick(t))

	ind := indicator.Compute(w.win)
	sig := signal.Evaluate(t.Price, ind, th)

	fired, suppressed := w.det.Evaluate(t.TS, t.Price, ind, th)
	alerts = append(alerts, fired...)
	for _, a := range alerts {
		w.eng.met.AlertsFired.WithLabelValues(string(a.Type)).Inc()
	}
	if suppressed > 0 {
		w.eng.met.AlertsSuppressed.Add(float64(suppressed))
	}

	var changePct *float64
	if w.prevClose != nil && *w.prevClose != 0 {
		cp := (t.Price - *w.prevClose) / *w.prevClose * 100
		changePct = &cp
	}
	_, vol := w.win.SessionSums()

	snap := model.StockSnapshot{
		Symbol:     w.symbol,
		Price:      t.Price,
		Open:       w.dayOpen,
		High:       w.dayHigh,
		Low:        w.dayLow,
		PrevClose:  w.prevClose,
		ChangePct:  changePct,
		GapPct:     w.gapPct,
		Volume:     vol,
		Indicators: ind,
		Signal:     sig,
		UpdatedAt:  t.TS,
	}

	var prev *model.StockSnapshot
	if w.hasLast {
		prev = &w.last
	}
	changed := snap.ChangedFields(prev)
	w.last = snap
	w.hasLast = true

	w.eng.met.TickLatency.Observe(time.Since(start).Seconds())
	return model.Update{
		Symbol:        w.symbol,
		Snapshot:      snap,
		Alerts:        alerts,
		UpdatedFields: changed,
	}, true
}

// latest returns the last published snapshot.
func (w *worker) latest() (model.StockSnapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.hasLast
}
