// Package query answers the read-side questions consumers ask about a symbol:
// the scored option chain and the instant analysis. Answers come only from
// the cache. When neither a fresh nor a backup copy exists the answer is an
// explicit neutral placeholder with status "unavailable", never an error.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/options"
)

// StatusSource reports connectivity. *session.Supervisor satisfies it.
type StatusSource interface {
	Status() session.Status
}

// OptionChain is the answer to an option-chain query.
type OptionChain struct {
	Symbol     string                `json:"symbol"`
	Status     cache.Status          `json:"status"`
	Chain      *options.ChainResult  `json:"chain,omitempty"`
	Signal     model.SignalResult    `json:"signal"`
	Connection model.ConnectionState `json:"connection"`
	Degraded   bool                  `json:"degraded"`
}

// Analysis is the answer to an instant-analysis query.
type Analysis struct {
	Symbol     string                `json:"symbol"`
	Status     cache.Status          `json:"status"`
	Price      float64               `json:"price"`
	ChangePct  float64               `json:"change_pct"`
	Indicators *model.Bundle         `json:"indicators,omitempty"`
	Compass    model.SignalResult    `json:"compass"`
	PrevDay    model.PrevDay         `json:"prev_day"`
	Futures    *model.FuturesQuote   `json:"futures,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Connection model.ConnectionState `json:"connection"`
	Degraded   bool                  `json:"degraded"`
}

// Service reads cached results. Safe for concurrent use.
type Service struct {
	dist   *cache.Distributor
	status StatusSource
	now    func() time.Time
}

// New creates a query service. status may be nil.
func New(dist *cache.Distributor, status StatusSource) *Service {
	return &Service{dist: dist, status: status, now: time.Now}
}

// WithClock replaces the clock used to stamp placeholders.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) conn() (model.ConnectionState, bool) {
	if s.status == nil {
		return model.StateDisconnected, false
	}
	st := s.status.Status()
	return st.State, st.Degraded
}

// OptionChain returns the latest scored chain for symbol.
func (s *Service) OptionChain(ctx context.Context, symbol string) (OptionChain, error) {
	out := OptionChain{Symbol: symbol}
	out.Connection, out.Degraded = s.conn()

	var res options.ChainResult
	status, err := s.dist.FetchResult(ctx, cache.FeatureOptions, symbol, &res)
	out.Status = status
	switch {
	case errors.Is(err, cache.ErrDataUnavailable):
		out.Signal = model.Placeholder("option chain data unavailable", s.now())
		return out, nil
	case err != nil:
		return out, err
	}
	out.Chain = &res
	out.Signal = res.Signal
	return out, nil
}

// InstantAnalysis returns the latest indicator bundle and compass result for
// symbol. Status is the worst of the two cached reads.
func (s *Service) InstantAnalysis(ctx context.Context, symbol string) (Analysis, error) {
	out := Analysis{Symbol: symbol}
	out.Connection, out.Degraded = s.conn()

	var bundle model.Bundle
	bstatus, err := s.dist.FetchResult(ctx, cache.FeatureIndicators, symbol, &bundle)
	if err != nil && !errors.Is(err, cache.ErrDataUnavailable) {
		return out, err
	}
	if err == nil {
		out.Indicators = &bundle
	}

	cstatus, err := s.dist.FetchResult(ctx, cache.FeatureCompass, symbol, &out.Compass)
	switch {
	case errors.Is(err, cache.ErrDataUnavailable):
		out.Compass = model.Placeholder("compass data unavailable", s.now())
	case err != nil:
		return out, err
	}
	out.Status = worst(bstatus, cstatus)

	if snap, err := s.dist.Snapshot(ctx, symbol); err == nil {
		out.Price = snap.Tick.Price
		out.ChangePct = snap.Tick.ChangePct()
		out.PrevDay = snap.PrevDay
		out.Futures = snap.Futures
		out.UpdatedAt = snap.UpdatedAt
	}
	return out, nil
}

// Summary returns the polling summary for symbol. A symbol with no summary
// yet gets a neutral, stale record.
func (s *Service) Summary(ctx context.Context, symbol string) (model.Summary, error) {
	sum, err := s.dist.Summary(ctx, symbol)
	if err == nil {
		return sum, nil
	}
	if !errors.Is(err, cache.ErrDataUnavailable) {
		return sum, err
	}
	sum = model.Summary{Symbol: symbol, Bias: string(model.Neutral), Stale: true, TS: s.now()}
	sum.Connection, sum.Degraded = s.conn()
	return sum, nil
}

var rank = map[cache.Status]int{
	cache.StatusFresh:       0,
	cache.StatusStale:       1,
	cache.StatusUnavailable: 2,
}

func worst(a, b cache.Status) cache.Status {
	if rank[a] >= rank[b] {
		return a
	}
	return b
}
