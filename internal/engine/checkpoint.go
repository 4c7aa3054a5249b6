package engine

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"screener-stream/internal/indicator"
	"screener-stream/internal/model"
	"screener-stream/internal/signal"
	"screener-stream/internal/window"
)

// Checkpoint is the serialized engine state: every symbol's window and
// session bookkeeping as of SavedAt. Alert edge state is deliberately
// not persisted; after a restore the detectors start clear and the
// cooldown clock resets.
type Checkpoint struct {
	SavedAt time.Time              `json:"saved_at"`
	Symbols map[string]SymbolState `json:"symbols"`
}

// SymbolState is one symbol's restorable state.
type SymbolState struct {
	Window    window.State `json:"window"`
	SessionID string       `json:"session_id"`
	PrevClose *float64     `json:"prev_close,omitempty"`
	GapPct    *float64     `json:"gap_pct,omitempty"`
	DayOpen   float64      `json:"day_open"`
	DayHigh   float64      `json:"day_high"`
	DayLow    float64      `json:"day_low"`
	LastTS    time.Time    `json:"last_ts"`
}

// snapshot captures a consistent copy of every worker's state.
func (e *Engine) snapshot() Checkpoint {
	cp := Checkpoint{
		SavedAt: time.Now(),
		Symbols: make(map[string]SymbolState),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for sym, w := range e.workers {
		w.mu.Lock()
		cp.Symbols[sym] = SymbolState{
			Window:    w.win.Snapshot(),
			SessionID: w.sessionID,
			PrevClose: w.prevClose,
			GapPct:    w.gapPct,
			DayOpen:   w.dayOpen,
			DayHigh:   w.dayHigh,
			DayLow:    w.dayLow,
			LastTS:    w.lastTS,
		}
		w.mu.Unlock()
	}
	return cp
}

func (e *Engine) saveCheckpoint() {
	if e.ckpt == nil {
		return
	}
	cp := e.snapshot()
	if len(cp.Symbols) == 0 {
		return
	}
	data, err := json.Marshal(cp)
	if err != nil {
		log.Errorf("[engine] checkpoint marshal: %v", err)
		return
	}
	if err := e.ckpt.SaveCheckpointJSON(data); err != nil {
		log.Warnf("[engine] checkpoint save: %v", err)
		return
	}
	log.Debugf("[engine] checkpoint saved: %d symbols, %d bytes", len(cp.Symbols), len(data))
}

// Restore loads the latest checkpoint and seeds workers from it. Call
// before Run; stale checkpoints past CheckpointMaxAge are discarded.
// Restored symbols answer Latest immediately with their last known
// state recomputed from the window.
func (e *Engine) Restore() error {
	if e.ckpt == nil {
		return nil
	}
	data, err := e.ckpt.ReadLatestCheckpointJSON()
	if err != nil {
		return fmt.Errorf("checkpoint read: %w", err)
	}
	if len(data) == 0 {
		log.Infof("[engine] no checkpoint found, starting cold")
		return nil
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return fmt.Errorf("checkpoint decode: %w", err)
	}
	if e.cfg.CheckpointMaxAge > 0 && time.Since(cp.SavedAt) > e.cfg.CheckpointMaxAge {
		log.Warnf("[engine] checkpoint from %s too old (max age %s), starting cold",
			cp.SavedAt.Format(time.RFC3339), e.cfg.CheckpointMaxAge)
		return nil
	}

	for sym, st := range cp.Symbols {
		w := e.workerFor(sym)
		w.mu.Lock()
		w.win = window.Restore(st.Window)
		w.sessionID = st.SessionID
		w.prevClose = st.PrevClose
		w.gapPct = st.GapPct
		w.dayOpen = st.DayOpen
		w.dayHigh = st.DayHigh
		w.dayLow = st.DayLow
		w.lastTS = st.LastTS
		w.rebuildLastLocked()
		w.mu.Unlock()
	}
	log.Infof("[engine] restored %d symbols from checkpoint saved %s",
		len(cp.Symbols), cp.SavedAt.Format(time.RFC3339))
	return nil
}

// rebuildLastLocked recomputes the published snapshot from restored
// window state so reads have data before the first live tick.
func (w *worker) rebuildLastLocked() {
	lastClose, ok := w.win.LastClose()
	if !ok {
		return
	}
	th := w.eng.th.Get()
	ind := indicator.Compute(w.win)

	var changePct *float64
	if w.prevClose != nil && *w.prevClose != 0 {
		cp := (lastClose - *w.prevClose) / *w.prevClose * 100
		changePct = &cp
	}
	_, vol := w.win.SessionSums()

	w.last = model.StockSnapshot{
		Symbol:     w.symbol,
		Price:      lastClose,
		Open:       w.dayOpen,
		High:       w.dayHigh,
		Low:        w.dayLow,
		PrevClose:  w.prevClose,
		ChangePct:  changePct,
		GapPct:     w.gapPct,
		Volume:     vol,
		Indicators: ind,
		Signal:     signal.Evaluate(lastClose, ind, th),
		UpdatedAt:  w.lastTS,
	}
	w.hasLast = true
}
