// Package hub fans engine updates out to subscribers. Every subscriber
// owns a bounded coalescing queue drained by its own pump goroutine, so
// a stalled consumer loses its own oldest updates and nothing else:
// Publish never blocks and other subscribers keep their full stream.
package hub

import (
	"sync"
	"sync/atomic"

	"screener-stream/internal/model"
)

// AllSymbols subscribes to every symbol the engine tracks.
const AllSymbols = "*"

// Hub routes updates to screener-wide and single-symbol subscribers.
type Hub struct {
	queueCap int

	mu       sync.RWMutex
	all      map[*Subscription]struct{}
	bySymbol map[string]map[*Subscription]struct{}

	drops atomic.Uint64
}

func New(queueCap int) *Hub {
	return &Hub{
		queueCap: queueCap,
		all:      make(map[*Subscription]struct{}),
		bySymbol: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a subscriber for one symbol, or for the whole
// screener when symbol is AllSymbols or empty. The returned
// subscription delivers updates on C until Close.
func (h *Hub) Subscribe(symbol string) *Subscription {
	s := &Subscription{
		hub:    h,
		symbol: symbol,
		q:      newQueue(h.queueCap),
		out:    make(chan model.Update),
		done:   make(chan struct{}),
	}
	if symbol == "" {
		s.symbol = AllSymbols
	}

	h.mu.Lock()
	if s.symbol == AllSymbols {
		h.all[s] = struct{}{}
	} else {
		set, ok := h.bySymbol[s.symbol]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.bySymbol[s.symbol] = set
		}
		set[s] = struct{}{}
	}
	h.mu.Unlock()

	go s.pump()
	return s
}

// Publish hands an update to every matching subscriber queue. It never
// blocks; full queues coalesce by evicting their oldest entry.
func (h *Hub) Publish(u model.Update) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.all {
		if !s.q.push(u) {
			h.drops.Add(1)
		}
	}
	for s := range h.bySymbol[u.Symbol] {
		if !s.q.push(u) {
			h.drops.Add(1)
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.all)
	for _, set := range h.bySymbol {
		n += len(set)
	}
	return n
}

// Drops reports the total updates evicted across all subscribers.
func (h *Hub) Drops() uint64 {
	return h.drops.Load()
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.symbol == AllSymbols {
		delete(h.all, s)
		return
	}
	if set, ok := h.bySymbol[s.symbol]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.bySymbol, s.symbol)
		}
	}
}

// Subscription is one consumer's handle: a delivery channel plus the
// coalescing queue behind it.
type Subscription struct {
	hub    *Hub
	symbol string
	q      *queue
	out    chan model.Update
	done   chan struct{}
	once   sync.Once
}

// C delivers updates in arrival order. The channel closes after Close.
func (s *Subscription) C() <-chan model.Update { return s.out }

// Symbol returns the subscribed symbol, AllSymbols for screener-wide.
func (s *Subscription) Symbol() string { return s.symbol }

// Dropped reports how many updates this subscriber lost to coalescing.
func (s *Subscription) Dropped() uint64 { return s.q.droppedCount() }

// Close detaches the subscriber. Idempotent; pending updates are
// discarded and C is closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// pump drains the queue into the delivery channel. Blocking on a slow
// consumer is fine here: the queue keeps absorbing and coalescing
// behind it.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		u, ok := s.q.pop()
		if !ok {
			select {
			case <-s.q.notify:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- u:
		case <-s.done:
			return
		}
	}
}
