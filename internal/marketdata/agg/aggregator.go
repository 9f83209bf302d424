// Package agg builds interval OHLCV candles from normalized ticks.
package agg

import (
	"log"
	"sort"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// candleState holds the in-progress candle for one symbol.
type candleState struct {
	bucket time.Time
	candle model.Candle
}

// Builder folds ticks into one live candle per symbol and closes it when a
// tick for a later bucket arrives or Flush passes the bucket end. It is
// owned by the ingestion task and is not safe for concurrent use.
type Builder struct {
	interval time.Duration
	states   map[string]*candleState
	closed   map[string]time.Time // last closed bucket, per symbol
	lastVol  map[string]int64     // cumulative day volume seen last, per symbol

	// OnLateTick is called when a tick for an already-closed bucket is dropped (optional).
	OnLateTick func(symbol string)
}

// New creates a Builder with the given candle interval.
func New(interval time.Duration) *Builder {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Builder{
		interval: interval,
		states:   make(map[string]*candleState),
		closed:   make(map[string]time.Time),
		lastVol:  make(map[string]int64),
	}
}

// Interval returns the candle interval.
func (b *Builder) Interval() time.Duration { return b.interval }

// Bucket returns the interval start containing ts.
func (b *Builder) Bucket(ts time.Time) time.Time {
	return ts.UTC().Truncate(b.interval)
}

// Update incorporates t. When t opens a new bucket, the previous candle for
// the symbol is closed and returned with ok=true. A tick for a bucket that
// is already closed, by an earlier tick or by Flush, is dropped.
func (b *Builder) Update(t model.Tick) (closed model.Candle, ok bool) {
	bucket := b.Bucket(t.TS)
	state, exists := b.states[t.Symbol]

	last, wasClosed := b.closed[t.Symbol]
	if (exists && bucket.Before(state.bucket)) || (wasClosed && !bucket.After(last)) {
		if b.OnLateTick != nil {
			b.OnLateTick(t.Symbol)
		} else {
			log.Printf("[agg] late tick for %s at %v, bucket %v already closed", t.Symbol, t.TS, bucket)
		}
		return model.Candle{}, false
	}
	vol := b.volumeDelta(t)

	if exists && bucket.After(state.bucket) {
		closed, ok = state.candle, true
		b.closed[t.Symbol] = state.bucket
		exists = false
	}

	if !exists {
		b.states[t.Symbol] = &candleState{
			bucket: bucket,
			candle: model.Candle{
				Symbol: t.Symbol,
				TS:     bucket,
				Open:   t.Price,
				High:   t.Price,
				Low:    t.Price,
				Close:  t.Price,
				Volume: vol,
				Ticks:  1,
			},
		}
		return closed, ok
	}

	c := &state.candle
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += vol
	c.Ticks++
	return closed, ok
}

// volumeDelta converts the cumulative day volume on a tick into the volume
// traded since the previous tick. A drop in cumulative volume means a new
// session and restarts the count.
func (b *Builder) volumeDelta(t model.Tick) int64 {
	prev, seen := b.lastVol[t.Symbol]
	b.lastVol[t.Symbol] = t.Volume
	if !seen || t.Volume < prev {
		return 0
	}
	return t.Volume - prev
}

// Live returns a copy of the forming candle for symbol.
func (b *Builder) Live(symbol string) (model.Candle, bool) {
	state, ok := b.states[symbol]
	if !ok {
		return model.Candle{}, false
	}
	return state.candle, true
}

// Flush closes every candle whose bucket ended at or before now, in symbol order.
func (b *Builder) Flush(now time.Time) []model.Candle {
	var out []model.Candle
	for _, sym := range b.symbols() {
		state := b.states[sym]
		if !now.Before(state.bucket.Add(b.interval)) {
			out = append(out, state.candle)
			b.closed[sym] = state.bucket
			delete(b.states, sym)
		}
	}
	return out
}

// FlushAll closes every open candle regardless of bucket, in symbol order.
func (b *Builder) FlushAll() []model.Candle {
	var out []model.Candle
	for _, sym := range b.symbols() {
		state := b.states[sym]
		out = append(out, state.candle)
		b.closed[sym] = state.bucket
		delete(b.states, sym)
	}
	return out
}

func (b *Builder) symbols() []string {
	syms := make([]string, 0, len(b.states))
	for s := range b.states {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}
