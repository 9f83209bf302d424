package ingest

import (
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

type gateState struct {
	price float64
	at    time.Time
	phase model.SessionPhase
}

// Gate bounds downstream work per symbol. A tick passes when its price
// changed, the minimum update interval elapsed since the last accepted tick,
// or the session phase changed. Owned by the ingestion task.
type Gate struct {
	minInterval time.Duration
	last        map[string]gateState

	// OnDrop is called for every rejected tick (optional).
	OnDrop func(symbol string)
}

// NewGate creates a gate with the given minimum update interval.
func NewGate(minInterval time.Duration) *Gate {
	return &Gate{
		minInterval: minInterval,
		last:        make(map[string]gateState),
	}
}

// Accept reports whether t should be forwarded and records it if so.
func (g *Gate) Accept(t model.Tick) bool {
	prev, seen := g.last[t.Symbol]
	if seen &&
		t.Price == prev.price &&
		t.Phase == prev.phase &&
		t.TS.Sub(prev.at) < g.minInterval {
		if g.OnDrop != nil {
			g.OnDrop(t.Symbol)
		}
		return false
	}
	g.last[t.Symbol] = gateState{price: t.Price, at: t.TS, phase: t.Phase}
	return true
}

// Reset forgets the last accepted tick for symbol so the next one passes.
func (g *Gate) Reset(symbol string) {
	delete(g.last, symbol)
}
