// Package pipeline is the ingestion task and the per-feature background
// loops. One goroutine owns every per-symbol structure and runs
// normalize, gate, aggregate, indicators, compass, cache and broadcast in
// arrival order; the loops only read what the ingestion task cached.
package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/breaker"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/gateway"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/logger"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/marketdata/agg"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/marketdata/closedetector"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/marketdata/ingest"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/ringbuf"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/compass"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/options"
)

// Broadcaster fans envelopes out to subscribers. *gateway.Hub satisfies it.
type Broadcaster interface {
	BroadcastJSON(ctx context.Context, channel string, v any, srcTS time.Time) error
}

// StatusSource reports connectivity. *session.Supervisor satisfies it.
type StatusSource interface {
	Status() session.Status
}

// ChainSource fetches an option chain around the spot.
type ChainSource interface {
	Fetch(ctx context.Context, inst model.Instrument, spot float64, now time.Time) (options.Chain, error)
}

// Config tunes the engine. Zero values take the defaults noted.
type Config struct {
	Universe          []model.Instrument
	Calendar          *markethours.Calendar
	CandleInterval    time.Duration // 1m
	MinUpdateInterval time.Duration // 1s
	RingCapacity      int           // 100
	RiskFreeRate      float64       // 0.07
	FlushInterval     time.Duration // 1s, candle flush and close detection
	OptionsRefresh    time.Duration // 30s
	CompassBroadcast  time.Duration // 5s
	SummaryInterval   time.Duration // 1s
	ClosedRefresh     time.Duration // 5m, summary refresh while CLOSED
	StaleAfter        time.Duration // 60s, summary marked stale past this snapshot age
	ArchiveBuffer     int           // 1024
	Now               func() time.Time
}

func (c *Config) defaults() {
	if c.Calendar == nil {
		c.Calendar = markethours.DefaultCalendar()
	}
	if c.CandleInterval <= 0 {
		c.CandleInterval = time.Minute
	}
	if c.MinUpdateInterval <= 0 {
		c.MinUpdateInterval = time.Second
	}
	if c.RingCapacity <= 0 {
		c.RingCapacity = ringbuf.DefaultCapacity
	}
	if c.RiskFreeRate == 0 {
		c.RiskFreeRate = 0.07
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.OptionsRefresh <= 0 {
		c.OptionsRefresh = 30 * time.Second
	}
	if c.CompassBroadcast <= 0 {
		c.CompassBroadcast = 5 * time.Second
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = time.Second
	}
	if c.ClosedRefresh <= 0 {
		c.ClosedRefresh = 5 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 60 * time.Second
	}
	if c.ArchiveBuffer <= 0 {
		c.ArchiveBuffer = 1024
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine is the ingestion task plus the feature loops.
type Engine struct {
	cfg      Config
	dist     *cache.Distributor
	out      Broadcaster
	status   StatusSource
	breakers *breaker.Set
	archive  model.CandleArchive
	chains   ChainSource

	// Owned by the ingestion goroutine.
	norm      *ingest.Normalizer
	gate      *ingest.Gate
	builder   *agg.Builder
	states    map[string]*symbolState
	order     []string
	archiveCh chan model.Candle

	// Optional hooks.
	OnQuote           func(source string)
	OnReject          func(reason string, err error)
	OnAccepted        func()
	OnCandle          func(c model.Candle, evicted bool)
	OnComputeError    func(feature, symbol string, err error)
	OnComputeDuration func(feature string, d time.Duration)
	OnCacheError      func(op string, err error)
	OnSessionClose    func(symbol string, ref model.PrevDay)
	OnChainError      func(symbol string, err error)
}

// NewEngine creates an engine over the index instruments of cfg.Universe.
// out, status and breakers may be nil.
func NewEngine(cfg Config, dist *cache.Distributor, out Broadcaster, status StatusSource, breakers *breaker.Set) *Engine {
	cfg.defaults()
	if breakers == nil {
		breakers = breaker.NewSet(5, 30*time.Second)
	}
	e := &Engine{
		cfg:      cfg,
		dist:     dist,
		out:      out,
		status:   status,
		breakers: breakers,
		norm:     ingest.NewNormalizer(nil),
		gate:     ingest.NewGate(cfg.MinUpdateInterval),
		builder:  agg.New(cfg.CandleInterval),
		states:   make(map[string]*symbolState),
	}
	for _, inst := range cfg.Universe {
		if inst.Kind != model.KindIndex {
			continue
		}
		e.norm.Add(inst)
		e.states[inst.Symbol] = newSymbolState(inst, cfg.RingCapacity)
		e.order = append(e.order, inst.Symbol)
	}
	return e
}

// WithArchive warm-starts rings and previous-day references from a and
// archives every closed candle to it.
func (e *Engine) WithArchive(a model.CandleArchive) *Engine {
	e.archive = a
	return e
}

// WithChains enables the option-chain refresh loop.
func (e *Engine) WithChains(src ChainSource) *Engine {
	e.chains = src
	return e
}

// Gate exposes the accept gate so callers can install its drop hook.
func (e *Engine) Gate() *ingest.Gate { return e.gate }

// Builder exposes the candle builder so callers can install its late-tick hook.
func (e *Engine) Builder() *agg.Builder { return e.builder }

// Symbols returns the index symbols in universe order.
func (e *Engine) Symbols() []string { return append([]string(nil), e.order...) }

func (e *Engine) now() time.Time { return e.cfg.Now() }

func (e *Engine) connStatus() session.Status {
	if e.status == nil {
		return session.Status{State: model.StateDisconnected}
	}
	return e.status.Status()
}

// Run drives the ingestion task until ctx is cancelled or quotes is closed.
// contracts may be nil. The feature loops and the archive writer run for
// the same lifetime; Run returns after all of them stopped.
func (e *Engine) Run(ctx context.Context, quotes <-chan model.Quote, contracts <-chan model.ContractSet) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	e.warmStart(ctx)

	if e.archive != nil {
		e.archiveCh = make(chan model.Candle, e.cfg.ArchiveBuffer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.archive.Run(ctx, e.archiveCh)
		}()
	}
	loops := []func(context.Context){e.runCompass, e.runSummary}
	if e.chains != nil {
		loops = append(loops, e.runOptions)
	}
	for _, loop := range loops {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(loop)
	}
	flush := time.NewTicker(e.cfg.FlushInterval)
	defer flush.Stop()

	log.Printf("[pipeline] ingestion started for %v", e.order)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[pipeline] ingestion stopped")
			return nil
		case q, ok := <-quotes:
			if !ok {
				log.Printf("[pipeline] quote queue closed")
				return nil
			}
			e.HandleQuote(ctx, q)
		case set := <-contracts:
			e.ApplyContracts(set)
		case <-flush.C:
			e.Flush(ctx)
		}
	}
}

// warmStart loads ring history and previous-day references from the archive.
func (e *Engine) warmStart(ctx context.Context) {
	now := e.now()
	for _, sym := range e.order {
		st := e.states[sym]
		st.session = markethours.SessionDate(now)
		st.detector = closedetector.New(sym, markethours.TodayClose(now))
		if e.archive == nil {
			continue
		}
		candles, err := e.archive.Recent(ctx, sym, st.ring.Cap())
		if err != nil {
			log.Printf("[pipeline] warm start %s: %v", sym, err)
		}
		for _, c := range candles {
			st.ring.Push(c)
		}
		if ref, err := e.archive.PrevDay(ctx, sym, now); err == nil && ref.Valid() {
			st.prevDay = ref
			e.norm.SeedPrevClose(sym, ref.Close)
		}
		log.Printf("[pipeline] warm start %s: %d candles, prev day %+v", sym, st.ring.Len(), st.prevDay)
	}
}

// HandleQuote processes one quote. Only the ingestion goroutine may call it.
func (e *Engine) HandleQuote(ctx context.Context, q model.Quote) {
	now := e.now()
	if q.TS.IsZero() {
		q.TS = now
	}
	if e.OnQuote != nil {
		e.OnQuote(q.Source)
	}

	if inst, ok := e.norm.Lookup(q.Exchange, q.Token); ok {
		if inst.Kind == model.KindFuture {
			e.applyFuture(inst, q)
			return
		}
		// A new trading date reseeds the previous close before normalizing.
		if st := e.states[inst.Symbol]; st != nil {
			e.rollSession(st, now)
		}
	}

	phase := markethours.Phase(now, e.cfg.Calendar)
	t, err := e.norm.Normalize(q, phase)
	if err != nil {
		e.reject(err)
		return
	}
	st := e.states[t.Symbol]
	if st == nil {
		return
	}

	if ref, ok := ingest.PrevDayFrom(q); ok && st.vendorRef != st.session {
		st.prevDay, st.vendorRef = ref, st.session
	}
	e.observeClose(ctx, st, t.Price, now)

	if !phase.Ingests() {
		// Outside the session only the last-known values are refreshed.
		st.observe(t)
		e.store(ctx, st, now)
		return
	}
	if !e.gate.Accept(t) {
		return
	}
	if e.OnAccepted != nil {
		e.OnAccepted()
	}
	e.process(ctx, st, t, now)
}

func (e *Engine) reject(err error) {
	reason := "invalid"
	switch {
	case errors.Is(err, ingest.ErrUnknownToken):
		reason = "unknown_token"
	case errors.Is(err, ingest.ErrBadPrice):
		reason = "bad_price"
	}
	if e.OnReject != nil {
		e.OnReject(reason, err)
	}
}

// process runs the full enrichment path for an accepted tick.
func (e *Engine) process(ctx context.Context, st *symbolState, t model.Tick, now time.Time) {
	sym := t.Symbol
	if closed, ok := e.builder.Update(t); ok {
		e.closeCandle(ctx, st, closed)
	}
	st.observe(t)

	ctx = logger.WithTraceID(ctx, logger.NewTraceID(sym, t.TS))

	indicatorsOK := e.guard(ctx, FeatureIndicators, sym, func() error {
		in := indicator.BundleInput{Closed: st.ring.Candles(), Tick: t, PrevDay: st.prevDay}
		if live, ok := e.builder.Live(sym); ok {
			in.Live = &live
		}
		st.bundle = indicator.ComputeBundle(in)
		return nil
	}) == nil

	compassOK := e.guard(ctx, FeatureCompass, sym, func() error {
		res := compass.Score(compass.Input{
			Symbol:       sym,
			Spot:         t.Price,
			Bundle:       st.bundle,
			Candles:      st.ring.Candles(),
			Futures:      st.futures,
			RiskFreeRate: e.cfg.RiskFreeRate,
			Now:          t.TS,
		})
		st.compass = &res
		return nil
	}) == nil

	snap := e.store(ctx, st, now)
	if indicatorsOK {
		e.cacheErr("result:"+FeatureIndicators, e.dist.PublishResult(ctx, FeatureIndicators, sym, st.bundle))
	}
	if compassOK && st.compass != nil {
		e.cacheErr("result:"+FeatureCompass, e.dist.PublishResult(ctx, FeatureCompass, sym, st.compass))
	}

	// FREEZE and PRE_OPEN update the snapshot silently.
	if t.Phase.Broadcasts() && e.out != nil {
		if err := e.out.BroadcastJSON(ctx, gateway.Channel(gateway.KindTick, sym), snap, t.TS); err != nil {
			log.Printf("[pipeline] broadcast %s: %v", sym, err)
		}
	}
}

// store writes the symbol's snapshot and scratch to the cache.
func (e *Engine) store(ctx context.Context, st *symbolState, now time.Time) model.MarketSnapshot {
	snap := st.snapshot(e.connStatus(), now)
	e.cacheErr("snapshot", e.dist.PutSnapshot(ctx, snap))
	e.cacheErr("scratch", e.dist.PutScratch(ctx, st.inst.Symbol, st.scratch))
	return snap
}

func (e *Engine) cacheErr(op string, err error) {
	if err == nil {
		return
	}
	if e.OnCacheError != nil {
		e.OnCacheError(op, err)
		return
	}
	log.Printf("[pipeline] cache %s: %v", op, err)
}

// closeCandle stores a closed candle before anything can broadcast a
// result computed from it.
func (e *Engine) closeCandle(ctx context.Context, st *symbolState, c model.Candle) {
	evicted := st.ring.Push(c)
	e.cacheErr("candles", e.dist.PushCandle(ctx, c))
	if e.archiveCh != nil {
		select {
		case e.archiveCh <- c:
		default:
			log.Printf("[pipeline] archive queue full, candle %s %v not archived", c.Symbol, c.TS)
		}
	}
	if e.OnCandle != nil {
		e.OnCandle(c, evicted)
	}
}

// Flush closes candles whose bucket has ended and lets the close detectors
// see the last price when no ticks arrive. Ingestion goroutine only.
func (e *Engine) Flush(ctx context.Context) {
	now := e.now()
	for _, c := range e.builder.Flush(now) {
		if st := e.states[c.Symbol]; st != nil {
			e.closeCandle(ctx, st, c)
		}
	}
	for _, sym := range e.order {
		st := e.states[sym]
		e.rollSession(st, now)
		if st.hasTick {
			e.observeClose(ctx, st, st.last.Price, now)
		}
	}
}

// rollSession switches a symbol to a new trading date: the close captured
// the day before becomes the previous-day reference.
func (e *Engine) rollSession(st *symbolState, now time.Time) {
	day := markethours.SessionDate(now)
	if st.session == day {
		return
	}
	st.session = day
	st.detector = closedetector.New(st.inst.Symbol, markethours.TodayClose(now))
	if st.captured != nil {
		st.prevDay = *st.captured
		e.norm.SeedPrevClose(st.inst.Symbol, st.captured.Close)
		st.captured = nil
	}
	e.gate.Reset(st.inst.Symbol)
}

func (e *Engine) observeClose(ctx context.Context, st *symbolState, price float64, now time.Time) {
	if st.detector == nil || !markethours.IsTradingDay(now, e.cfg.Calendar) {
		return
	}
	if !st.detector.Observe(price, now) {
		return
	}
	high, low := st.detector.Range()
	if st.hasTick && st.last.High > 0 && st.last.Low > 0 {
		high, low = st.last.High, st.last.Low
	}
	ref := model.PrevDay{High: high, Low: low, Close: st.detector.ClosingPrice(), Date: st.session}
	st.captured = &ref
	if e.archive != nil {
		if err := e.archive.SaveSessionClose(ctx, st.inst.Symbol, now, ref); err != nil {
			log.Printf("[pipeline] save session close %s: %v", st.inst.Symbol, err)
		}
	}
	if e.OnSessionClose != nil {
		e.OnSessionClose(st.inst.Symbol, ref)
	}
}

// ApplyContracts switches an index's futures reference to the new near
// month. Ingestion goroutine only.
func (e *Engine) ApplyContracts(set model.ContractSet) {
	st := e.states[set.Underlying]
	if st == nil {
		return
	}
	if st.contract != nil && (set.Near == nil || set.Near.Token != st.contract.Token) {
		e.norm.Remove(st.contract.Exchange, st.contract.Token)
		st.contract, st.futures = nil, nil
	}
	if set.Near == nil || st.contract != nil {
		return
	}
	near := *set.Near
	e.norm.Add(model.Instrument{
		Symbol:     near.TradingSymbol,
		Exchange:   near.Exchange,
		Token:      near.Token,
		Kind:       model.KindFuture,
		Underlying: set.Underlying,
	})
	st.contract = &near
	log.Printf("[pipeline] %s near future %s (expiry %s)", set.Underlying, near.TradingSymbol, near.Expiry.Format("2006-01-02"))
}

func (e *Engine) applyFuture(inst model.Instrument, q model.Quote) {
	st := e.states[inst.Underlying]
	if st == nil || st.contract == nil || st.contract.Token != inst.Token || q.LTP <= 0 {
		return
	}
	st.futures = &model.FuturesQuote{Contract: *st.contract, Price: q.LTP, TS: q.TS}
}
