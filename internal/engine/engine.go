// Package engine runs the per-symbol screener pipeline. A single
// dispatcher goroutine routes validated ticks to one worker per symbol;
// each worker owns its symbol's window, alert detector and published
// snapshot, so the hot path never shares mutable state across symbols.
package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"screener-stream/config"
	"screener-stream/internal/metrics"
	"screener-stream/internal/model"
	"screener-stream/internal/session"
)

// Config carries the engine tunables, copied from the application
// config by the caller.
type Config struct {
	WorkerBuffer       int
	UpdateBuffer       int
	CheckpointInterval time.Duration
	CheckpointMaxAge   time.Duration
}

// Engine coordinates workers and owns the update egress channel.
type Engine struct {
	cfg   Config
	th    *config.ThresholdStore
	clock session.Clock
	met   *metrics.Metrics
	ckpt  model.CheckpointStore // nil disables checkpointing

	updates chan model.Update

	mu      sync.RWMutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

// New builds an engine. ckpt may be nil when no checkpoint store is
// configured.
func New(cfg Config, th *config.ThresholdStore, clock session.Clock, met *metrics.Metrics, ckpt model.CheckpointStore) *Engine {
	if cfg.WorkerBuffer <= 0 {
		cfg.WorkerBuffer = 256
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 5000
	}
	return &Engine{
		cfg:     cfg,
		th:      th,
		clock:   clock,
		met:     met,
		ckpt:    ckpt,
		updates: make(chan model.Update, cfg.UpdateBuffer),
		workers: make(map[string]*worker),
	}
}

// Updates is the egress stream of per-tick updates. It closes after Run
// returns and all workers have drained.
func (e *Engine) Updates() <-chan model.Update { return e.updates }

// Run consumes ticks until ctx is cancelled or the channel closes, then
// drains workers, writes a final checkpoint and closes Updates.
func (e *Engine) Run(ctx context.Context, ticks <-chan model.Tick) {
	var ckptC <-chan time.Time
	if e.ckpt != nil && e.cfg.CheckpointInterval > 0 {
		t := time.NewTicker(e.cfg.CheckpointInterval)
		defer t.Stop()
		ckptC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case t, ok := <-ticks:
			if !ok {
				e.shutdown()
				return
			}
			e.route(t)
		case <-ckptC:
			e.saveCheckpoint()
		}
	}
}

// route validates a tick and hands it to the symbol's worker without
// blocking: a saturated worker sheds the tick instead of stalling every
// other symbol.
func (e *Engine) route(t model.Tick) {
	if !t.Valid() {
		e.met.TicksRejected.WithLabelValues("malformed").Inc()
		return
	}
	e.met.TicksTotal.Inc()

	w := e.workerFor(t.Symbol)
	select {
	case w.in <- t:
	default:
		e.met.TicksRejected.WithLabelValues("overflow").Inc()
	}
}

func (e *Engine) workerFor(symbol string) *worker {
	e.mu.RLock()
	w, ok := e.workers[symbol]
	e.mu.RUnlock()
	if ok {
		return w
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok = e.workers[symbol]; ok {
		return w
	}
	w = newWorker(e, symbol)
	e.workers[symbol] = w
	e.met.SymbolsTracked.Set(float64(len(e.workers)))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		w.run()
	}()
	return w
}

// publish emits an update without blocking; a full egress channel drops
// the update and the hub's coalescing recovers the state on the next one.
func (e *Engine) publish(u model.Update) {
	select {
	case e.updates <- u:
		e.met.UpdatesPublished.Inc()
	default:
		e.met.UpdatesDropped.Inc()
		log.Debugf("[engine] updates channel full, dropping %s", u.Symbol)
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	for _, w := range e.workers {
		close(w.in)
	}
	e.mu.Unlock()
	e.wg.Wait()

	e.saveCheckpoint()
	close(e.updates)
}

// Latest returns a copy of every symbol's most recent published
// snapshot.
func (e *Engine) Latest() []model.StockSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.StockSnapshot, 0, len(e.workers))
	for _, w := range e.workers {
		if snap, ok := w.latest(); ok {
			out = append(out, snap)
		}
	}
	return out
}

// LatestFor returns the most recent published snapshot for one symbol.
func (e *Engine) LatestFor(symbol string) (model.StockSnapshot, bool) {
	e.mu.RLock()
	w, ok := e.workers[symbol]
	e.mu.RUnlock()
	if !ok {
		return model.StockSnapshot{}, false
	}
	return w.latest()
}

// ClosesFor returns up to n recent window closes for one symbol, oldest
// first. Nil when the symbol is untracked.
func (e *Engine) ClosesFor(symbol string, n int) []float64 {
	e.mu.RLock()
	w, ok := e.workers[symbol]
	e.mu.RUnlock()
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.win.Closes(n)
}

// Symbols returns the number of live workers.
func (e *Engine) Symbols() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.workers)
}
