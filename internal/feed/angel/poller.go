package angel

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/pkg/smartconnect"
)

// Poller fetches full quotes for the universe over REST. It reuses the last
// good session; without one it reports a credential error.
type Poller struct {
	api      API
	universe []model.Instrument
	limiter  *rate.Limiter
	source   string
}

// NewPoller creates a poller sharing limiter with the other adapters.
func NewPoller(api API, universe []model.Instrument, limiter *rate.Limiter) *Poller {
	return &Poller{api: api, universe: universe, limiter: limiter, source: "poll"}
}

// Poll implements session.Poller.
func (p *Poller) Poll(ctx context.Context) ([]model.Quote, error) {
	return p.fetch(ctx, p.universe)
}

func (p *Poller) fetch(ctx context.Context, insts []model.Instrument) ([]model.Quote, error) {
	if len(insts) == 0 {
		return nil, nil
	}
	if !p.api.HasSession() {
		return nil, session.Credential("poll", smartconnect.ErrSession)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := p.api.Quote(ctx, smartconnect.QuoteFull, exchangeTokens(insts))
	if err != nil {
		return nil, classify("poll", err)
	}
	quotes := make([]model.Quote, 0, len(rows))
	for _, row := range rows {
		quotes = append(quotes, QuoteFromMarket(row, p.source))
	}
	return quotes, nil
}

// FuturesPoller pulls the near-month futures price of each resolved
// contract set. The pipeline folds those quotes into the index state.
type FuturesPoller struct {
	poller   *Poller
	contract func() []model.ContractSet
}

// NewFuturesPoller polls the near contracts returned by current.
func NewFuturesPoller(api API, limiter *rate.Limiter, current func() []model.ContractSet) *FuturesPoller {
	return &FuturesPoller{
		poller:   &Poller{api: api, limiter: limiter, source: "refresh"},
		contract: current,
	}
}

// Poll returns one quote per near contract.
func (f *FuturesPoller) Poll(ctx context.Context) ([]model.Quote, error) {
	var insts []model.Instrument
	for _, set := range f.contract() {
		if set.Near == nil {
			continue
		}
		insts = append(insts, model.Instrument{Exchange: set.Near.Exchange, Token: set.Near.Token})
	}
	return f.poller.fetch(ctx, insts)
}
