package pipeline

import (
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/marketdata/closedetector"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/ringbuf"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
)

// symbolState is everything the ingestion task keeps for one index. Only
// the ingestion goroutine touches it; other tasks read cached copies.
type symbolState struct {
	inst model.Instrument
	ring *ringbuf.Ring

	last    model.Tick
	hasTick bool
	scratch model.Scratch

	prevDay   model.PrevDay
	session   string // IST date the state belongs to
	vendorRef string // session in which the provider last sent a reference

	bundle  model.Bundle
	compass *model.SignalResult

	contract *model.Contract // near-month future
	futures  *model.FuturesQuote

	detector *closedetector.Detector
	captured *model.PrevDay // today's close, the next session's reference
}

func newSymbolState(inst model.Instrument, capacity int) *symbolState {
	return &symbolState{inst: inst, ring: ringbuf.New(capacity)}
}

func (st *symbolState) observe(t model.Tick) {
	st.last = t
	st.hasTick = true
	st.scratch = model.Scratch{LastPrice: t.Price, LastOI: t.OI, LastUpdate: t.TS}
}

func (st *symbolState) snapshot(status session.Status, now time.Time) model.MarketSnapshot {
	snap := model.MarketSnapshot{
		Symbol:     st.inst.Symbol,
		Tick:       st.last,
		Indicators: st.bundle,
		Compass:    st.compass,
		PrevDay:    st.prevDay,
		Connection: status.State,
		Degraded:   status.Degraded,
		UpdatedAt:  now,
	}
	if st.futures != nil {
		f := *st.futures
		snap.Futures = &f
	}
	return snap
}
