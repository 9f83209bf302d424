// Package ingest turns provider quotes into normalized ticks and decides
// which ticks are worth the downstream work.
package ingest

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

var (
	// ErrUnknownToken is returned for quotes outside the subscribed universe.
	ErrUnknownToken = errors.New("ingest: unknown token")
	// ErrBadPrice is returned for quotes with a non-positive last price.
	ErrBadPrice = errors.New("ingest: non-positive price")
)

// Previous-close provenance recorded on every tick.
const (
	PrevCloseProvided = "provided"
	PrevCloseCached   = "cached"
	PrevCloseFromLTP  = "price"
)

// FromPaise converts an integer paise amount to rupees without float drift.
func FromPaise(p int64) float64 {
	return decimal.New(p, -2).InexactFloat64()
}

// Normalizer maps quotes to ticks. It is owned by the ingestion task and
// is not safe for concurrent use.
type Normalizer struct {
	byKey     map[string]model.Instrument // exchange:token
	byToken   map[string]model.Instrument
	prevClose map[string]float64 // symbol -> last resolved previous close
}

// NewNormalizer builds a normalizer for the given universe.
func NewNormalizer(universe []model.Instrument) *Normalizer {
	n := &Normalizer{
		byKey:     make(map[string]model.Instrument, len(universe)),
		byToken:   make(map[string]model.Instrument, len(universe)),
		prevClose: make(map[string]float64, len(universe)),
	}
	for _, inst := range universe {
		n.Add(inst)
	}
	return n
}

// Add registers an instrument, e.g. a futures contract resolved at runtime.
func (n *Normalizer) Add(inst model.Instrument) {
	n.byKey[inst.Key()] = inst
	n.byToken[inst.Token] = inst
}

// Remove drops an instrument by exchange and token.
func (n *Normalizer) Remove(exchange, token string) {
	inst, ok := n.byKey[exchange+":"+token]
	if !ok {
		return
	}
	delete(n.byKey, inst.Key())
	if cur, ok := n.byToken[token]; ok && cur.Key() == inst.Key() {
		delete(n.byToken, token)
	}
}

// Lookup resolves a quote's instrument by exchange and token, falling back
// to the token alone when the provider omits the exchange.
func (n *Normalizer) Lookup(exchange, token string) (model.Instrument, bool) {
	if exchange != "" {
		if inst, ok := n.byKey[exchange+":"+token]; ok {
			return inst, true
		}
	}
	inst, ok := n.byToken[token]
	return inst, ok
}

// SeedPrevClose primes the cached previous close for symbol, e.g. from the
// archive or a captured session close.
func (n *Normalizer) SeedPrevClose(symbol string, v float64) {
	if v > 0 {
		n.prevClose[symbol] = v
	}
}

// Normalize resolves all optional vendor fields of q into a Tick. The
// previous close falls back through provided day-close, then the cached
// value for the symbol, then the current price.
func (n *Normalizer) Normalize(q model.Quote, phase model.SessionPhase) (model.Tick, error) {
	inst, ok := n.Lookup(q.Exchange, q.Token)
	if !ok {
		return model.Tick{}, fmt.Errorf("%w: %s:%s", ErrUnknownToken, q.Exchange, q.Token)
	}
	if q.LTP <= 0 {
		return model.Tick{}, fmt.Errorf("%w: %s %v", ErrBadPrice, inst.Symbol, q.LTP)
	}

	t := model.Tick{
		Symbol: inst.Symbol,
		Token:  inst.Token,
		Price:  q.LTP,
		Open:   orPrice(q.Open, q.LTP),
		High:   orPrice(q.High, q.LTP),
		Low:    orPrice(q.Low, q.LTP),
		Volume: orZero(q.Volume),
		OI:     orZero(q.OI),
		TS:     q.TS,
		Phase:  phase,
		Source: q.Source,
	}
	// The running high/low must contain the last price.
	if t.Price > t.High {
		t.High = t.Price
	}
	if t.Price < t.Low {
		t.Low = t.Price
	}

	switch {
	case positive(q.DayClose):
		t.PrevClose, t.PrevCloseSource = *q.DayClose, PrevCloseProvided
	case positive(q.PrevClose):
		t.PrevClose, t.PrevCloseSource = *q.PrevClose, PrevCloseProvided
	case n.prevClose[inst.Symbol] > 0:
		t.PrevClose, t.PrevCloseSource = n.prevClose[inst.Symbol], PrevCloseCached
	default:
		t.PrevClose, t.PrevCloseSource = q.LTP, PrevCloseFromLTP
	}
	if t.PrevCloseSource == PrevCloseProvided {
		n.prevClose[inst.Symbol] = t.PrevClose
	}
	return t, nil
}

// PrevDayFrom extracts a previous-day reference from a snapshot-style quote.
func PrevDayFrom(q model.Quote) (model.PrevDay, bool) {
	if !positive(q.PrevHigh) || !positive(q.PrevLow) || !positive(q.PrevClose) {
		return model.PrevDay{}, false
	}
	return model.PrevDay{High: *q.PrevHigh, Low: *q.PrevLow, Close: *q.PrevClose}, true
}

func orPrice(v *float64, price float64) float64 {
	if positive(v) {
		return *v
	}
	return price
}

func orZero(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

func positive(v *float64) bool { return v != nil && *v > 0 }
