package market

import (
	"errors"
	"sync"
	"time"
)

// Tick is a single price event for a symbol. The feed that produces ticks is
// out of scope here; the engine consumes them as-is.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Time   time.Time `json:"time"`
}

var ErrNoPrice = errors.New("price not found")

type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoPrice
	}
	return t, nil
}

// Snapshot returns the latest price per symbol.
func (ts *TickStore) Snapshot() map[string]float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make(map[string]float64, len(ts.ticks))
	for s, t := range ts.ticks {
		out[s] = t.Price
	}
	return out
}
