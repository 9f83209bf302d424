package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/gateway"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/options"
)

// CompassUpdate is the payload of the compass:{symbol} channel.
type CompassUpdate struct {
	Symbol     string                `json:"symbol"`
	Status     cache.Status          `json:"status"`
	Result     model.SignalResult    `json:"result"`
	Connection model.ConnectionState `json:"connection"`
	Degraded   bool                  `json:"degraded"`
}

// StatusUpdate is the payload of the process-wide status channel.
type StatusUpdate struct {
	Status   session.Status     `json:"status"`
	Breakers map[string]string  `json:"breakers"`
	Phase    model.SessionPhase `json:"phase"`
	Next     time.Time          `json:"next_phase_change"`
}

func (e *Engine) phase() model.SessionPhase {
	return markethours.Phase(e.now(), e.cfg.Calendar)
}

func (e *Engine) broadcast(ctx context.Context, channel string, v any, srcTS time.Time) {
	if e.out == nil {
		return
	}
	if err := e.out.BroadcastJSON(ctx, channel, v, srcTS); err != nil {
		log.Printf("[pipeline] broadcast %s: %v", channel, err)
	}
}

func every(ctx context.Context, d time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (e *Engine) runCompass(ctx context.Context) {
	every(ctx, e.cfg.CompassBroadcast, func(ctx context.Context) {
		if e.phase().Broadcasts() {
			e.PublishCompass(ctx)
		}
	})
}

// PublishCompass broadcasts the cached compass result of every symbol. A
// symbol with nothing cached gets the neutral placeholder.
func (e *Engine) PublishCompass(ctx context.Context) {
	st := e.connStatus()
	for _, sym := range e.order {
		var res model.SignalResult
		status, err := e.dist.FetchResult(ctx, FeatureCompass, sym, &res)
		if err != nil {
			res = model.Placeholder("compass data unavailable", e.now())
		}
		e.broadcast(ctx, gateway.Channel(gateway.KindCompass, sym), CompassUpdate{
			Symbol:     sym,
			Status:     status,
			Result:     res,
			Connection: st.State,
			Degraded:   st.Degraded,
		}, time.Time{})
	}
}

func (e *Engine) runOptions(ctx context.Context) {
	prev := make(map[string]options.MarketBias)
	e.RefreshOptions(ctx, prev)
	every(ctx, e.cfg.OptionsRefresh, func(ctx context.Context) {
		e.RefreshOptions(ctx, prev)
	})
}

// RefreshOptions fetches and scores the chain of every optionable index.
// prev carries each symbol's last PCR and ATM IV between refreshes and is
// updated in place. Nothing is fetched while the market is closed.
func (e *Engine) RefreshOptions(ctx context.Context, prev map[string]options.MarketBias) {
	if e.chains == nil || e.phase() == model.PhaseClosed {
		return
	}
	for _, inst := range e.cfg.Universe {
		if inst.Kind != model.KindIndex || inst.StrikeStep <= 0 {
			continue
		}
		e.refreshChain(ctx, inst, prev)
	}
}

func (e *Engine) refreshChain(ctx context.Context, inst model.Instrument, prev map[string]options.MarketBias) {
	sym := inst.Symbol
	snap, err := e.dist.Snapshot(ctx, sym)
	if err != nil || snap.Tick.Price <= 0 {
		return
	}
	now := e.now()
	chain, err := e.chains.Fetch(ctx, inst, snap.Tick.Price, now)
	if err != nil {
		// The previous result stays cached and readers fall back to it.
		if e.OnChainError != nil {
			e.OnChainError(sym, err)
		}
		log.Printf("[pipeline] option chain %s: %v", sym, err)
		return
	}

	var res options.ChainResult
	err = e.guard(ctx, FeatureOptions, sym, func() error {
		in := options.ChainInput{
			Symbol:       sym,
			Spot:         snap.Tick.Price,
			StrikeStep:   inst.StrikeStep,
			DaysToExpiry: daysTo(chain.Expiry, now),
			RiskFreeRate: e.cfg.RiskFreeRate,
			Strikes:      chain.Strikes,
			Now:          now,
		}
		if p, ok := prev[sym]; ok {
			if p.PCRAvailable {
				in.PrevPCR = &p.PCR
			}
			if p.ATMIV > 0 {
				in.PrevATMIV = &p.ATMIV
			}
		}
		res = options.Score(in)
		return nil
	})
	if err != nil {
		if skipped(err) {
			log.Printf("[pipeline] options %s skipped: breaker open", sym)
		}
		return
	}
	prev[sym] = res.Bias
	e.cacheErr("result:"+FeatureOptions, e.dist.PublishResult(ctx, FeatureOptions, sym, res))
	if e.phase().Broadcasts() {
		e.broadcast(ctx, gateway.Channel(gateway.KindOptions, sym), res, time.Time{})
	}
}

func daysTo(expiry, now time.Time) float64 {
	d := expiry.Sub(now).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

func (e *Engine) runSummary(ctx context.Context) {
	var last time.Time
	every(ctx, e.cfg.SummaryInterval, func(ctx context.Context) {
		now := e.now()
		if e.phase() == model.PhaseClosed && now.Sub(last) < e.cfg.ClosedRefresh {
			return
		}
		last = now
		e.RefreshSummaries(ctx)
	})
}

// RefreshSummaries rebuilds every symbol's summary from the cached snapshot
// and compass result, and broadcasts it while the market is live.
func (e *Engine) RefreshSummaries(ctx context.Context) {
	now := e.now()
	phase := e.phase()
	st := e.connStatus()
	for _, sym := range e.order {
		snap, err := e.dist.Snapshot(ctx, sym)
		if err != nil {
			continue
		}
		sum := model.Summary{
			Symbol:     sym,
			Price:      snap.Tick.Price,
			ChangePct:  snap.Tick.ChangePct(),
			Phase:      phase,
			Bias:       string(model.Neutral),
			Connection: st.State,
			Degraded:   st.Degraded,
			TS:         now,
		}
		var res model.SignalResult
		status, err := e.dist.FetchResult(ctx, FeatureCompass, sym, &res)
		if err == nil {
			sum.Bias, sum.Confidence = res.Label, res.Confidence
		}
		sum.Stale = status != cache.StatusFresh ||
			(phase.Ingests() && now.Sub(snap.UpdatedAt) > e.cfg.StaleAfter)

		e.cacheErr("summary", e.dist.PutSummary(ctx, sum))
		if phase.Broadcasts() {
			e.broadcast(ctx, gateway.Channel(gateway.KindSummary, sym), sum, time.Time{})
		}
	}
}

// PublishStatus broadcasts connectivity on the process-wide status channel.
// It is meant for the supervisor's transition hook.
func (e *Engine) PublishStatus(ctx context.Context, st session.Status) {
	now := e.now()
	breakers := make(map[string]string)
	for name, s := range e.breakers.States() {
		breakers[name] = s.String()
	}
	e.broadcast(ctx, gateway.KindStatus, StatusUpdate{
		Status:   st,
		Breakers: breakers,
		Phase:    markethours.Phase(now, e.cfg.Calendar),
		Next:     markethours.NextPhaseChange(now, e.cfg.Calendar),
	}, time.Time{})
}
