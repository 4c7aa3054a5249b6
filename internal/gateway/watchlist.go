package gateway

import (
	"sort"
	"strings"
	"sync"
)

// Watchlist is the set of pinned symbols. Pins float to the top of
// screener responses; membership is mutable at runtime over REST and
// seeded from config at boot.
type Watchlist struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewWatchlist seeds the set. Symbols normalize to upper case; blanks
// are dropped.
func NewWatchlist(symbols []string) *Watchlist {
	w := &Watchlist{set: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		if s = normalizeSymbol(s); s != "" {
			w.set[s] = struct{}{}
		}
	}
	return w
}

// Add pins a symbol. Reports whether it was newly added.
func (w *Watchlist) Add(symbol string) bool {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.set[symbol]; ok {
		return false
	}
	w.set[symbol] = struct{}{}
	return true
}

// Remove unpins a symbol. Reports whether it was present.
func (w *Watchlist) Remove(symbol string) bool {
	symbol = normalizeSymbol(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.set[symbol]; !ok {
		return false
	}
	delete(w.set, symbol)
	return true
}

// Has reports whether a symbol is pinned.
func (w *Watchlist) Has(symbol string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.set[symbol]
	return ok
}

// List returns the pinned symbols, sorted.
func (w *Watchlist) List() []string {
	w.mu.RLock()
	out := make([]string, 0, len(w.set))
	for s := range w.set {
		out = append(out, s)
	}
	w.mu.RUnlock()
	sort.Strings(out)
	return out
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
