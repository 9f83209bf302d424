// Package sim is the staging market: a random-walk generator served by
// cmd/tickserver over a plain JSON websocket, and the engine-side adapters
// that consume it in place of SmartAPI.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/options"
)

// Starting spot levels in rupees.
var basePrices = map[string]float64{
	"NIFTY":      25660,
	"BANKNIFTY":  57200,
	"FINNIFTY":   27100,
	"MIDCPNIFTY": 13300,
	"SENSEX":     84100,
}

const (
	defaultBase = 1000.0
	stepVol     = 0.0004 // per-step return std dev
	tickSize    = 0.05
	baseIV      = 0.13
	futExchange = "NFO"
)

type futState struct {
	contract model.Contract
	price    float64
	volume   int64
	oi       int64
}

type indexState struct {
	inst      model.Instrument
	price     float64
	open      float64
	high      float64
	low       float64
	prevClose float64
	prevHigh  float64
	prevLow   float64
	volume    int64
	futures   []*futState
	month     time.Month
}

// Market simulates spot indices, their three futures months and a weekly
// option chain around the spot. Safe for concurrent use.
type Market struct {
	mu      sync.Mutex
	rng     *rand.Rand
	now     func() time.Time
	rate    float64
	indices []*indexState
	bySym   map[string]*indexState
	oi      map[string]int64
}

// NewMarket creates a market for the index instruments of universe.
func NewMarket(universe []model.Instrument, seed int64, now func() time.Time) *Market {
	if now == nil {
		now = time.Now
	}
	m := &Market{
		rng:   rand.New(rand.NewSource(seed)),
		now:   now,
		rate:  0.07,
		bySym: make(map[string]*indexState),
		oi:    make(map[string]int64),
	}
	for _, inst := range universe {
		if inst.Kind != model.KindIndex {
			continue
		}
		base, ok := basePrices[inst.Symbol]
		if !ok {
			base = defaultBase
		}
		st := &indexState{
			inst:      inst,
			price:     base,
			open:      base,
			high:      base,
			low:       base,
			prevClose: roundTick(base * (1 - 0.002)),
			prevHigh:  roundTick(base * 1.006),
			prevLow:   roundTick(base * 0.992),
		}
		m.indices = append(m.indices, st)
		m.bySym[inst.Symbol] = st
	}
	t := now()
	for _, st := range m.indices {
		m.rollFutures(st, t)
	}
	return m
}

// Step advances every price by one random-walk step and returns the
// resulting quotes.
func (m *Market) Step() []model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, st := range m.indices {
		st.price = roundTick(st.price * (1 + m.rng.NormFloat64()*stepVol))
		st.high = math.Max(st.high, st.price)
		st.low = math.Min(st.low, st.price)
		st.volume += int64(m.rng.Intn(500))
		m.rollFutures(st, now)
		for _, f := range st.futures {
			carry := m.rate * f.contract.DaysToExpiry(now) / 365
			noise := m.rng.NormFloat64() * 0.0003
			f.price = roundTick(st.price * (1 + carry + noise))
			f.volume += int64(m.rng.Intn(200))
			f.oi += int64(m.rng.Intn(101) - 50)
			if f.oi < 0 {
				f.oi = 0
			}
		}
	}
	return m.quotes(now)
}

// Quotes returns the current quotes without advancing.
func (m *Market) Quotes() []model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quotes(m.now())
}

func (m *Market) quotes(now time.Time) []model.Quote {
	out := make([]model.Quote, 0, len(m.indices)*4)
	for _, st := range m.indices {
		out = append(out, model.Quote{
			Token:     st.inst.Token,
			Exchange:  st.inst.Exchange,
			LTP:       st.price,
			Open:      ptr(st.open),
			High:      ptr(st.high),
			Low:       ptr(st.low),
			DayClose:  ptr(st.prevClose),
			Volume:    ptr(st.volume),
			TS:        now,
			PrevHigh:  ptr(st.prevHigh),
			PrevLow:   ptr(st.prevLow),
			PrevClose: ptr(st.prevClose),
			Source:    "sim",
		})
		for _, f := range st.futures {
			out = append(out, model.Quote{
				Token:    f.contract.Token,
				Exchange: futExchange,
				LTP:      f.price,
				Volume:   ptr(f.volume),
				OI:       ptr(f.oi),
				TS:       now,
				Source:   "sim",
			})
		}
	}
	return out
}

// Contracts lists the live futures months of symbol.
func (m *Market) Contracts(symbol string) ([]model.Contract, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.bySym[symbol]
	if !ok {
		return nil, false
	}
	out := make([]model.Contract, len(st.futures))
	for i, f := range st.futures {
		out[i] = f.contract
	}
	return out, true
}

// Chain prices a weekly option chain of window strikes either side of the
// ATM strike. OI walks between calls and the walk is reported as OIChange.
func (m *Market) Chain(symbol string, window int) (options.Chain, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.bySym[symbol]
	if !ok || st.inst.StrikeStep <= 0 {
		return options.Chain{}, false
	}
	now := m.now()
	expiry := weeklyExpiry(now)
	T := expiry.Sub(now).Hours() / 24 / 365
	step := st.inst.StrikeStep
	atm := math.Round(st.price/step) * step

	chain := options.Chain{Symbol: symbol, Expiry: expiry}
	for i := -window; i <= window; i++ {
		k := atm + float64(i)*step
		if k <= 0 {
			continue
		}
		moneyness := (k - st.price) / st.price
		vol := baseIV * (1 + 8*moneyness*moneyness)
		chain.Strikes = append(chain.Strikes, options.StrikeInput{
			Strike: k,
			CE:     m.leg(symbol, k, indicator.Call, st.price, T, vol),
			PE:     m.leg(symbol, k, indicator.Put, st.price, T, vol),
		})
	}
	return chain, true
}

func (m *Market) leg(symbol string, strike float64, typ indicator.OptionType, spot, T, vol float64) *options.Leg {
	key := fmt.Sprintf("%s:%g:%s", symbol, strike, typ)
	prev, seen := m.oi[key]
	if !seen {
		prev = int64(50000 + m.rng.Intn(150000))
	}
	next := prev + int64(m.rng.Intn(4001)-1800)
	if next < 0 {
		next = 0
	}
	m.oi[key] = next
	g := indicator.BlackScholes(spot, strike, T, vol, m.rate, typ)
	return &options.Leg{
		LTP:      math.Max(tickSize, roundTick(g.Price)),
		IV:       indicator.Round2(vol*100) / 100,
		OI:       next,
		OIChange: next - prev,
		Volume:   int64(m.rng.Intn(20000)),
	}
}

// rollFutures keeps three live monthly contracts, rolling on expiry.
func (m *Market) rollFutures(st *indexState, now time.Time) {
	if len(st.futures) == 3 && !now.After(st.futures[0].contract.Expiry) {
		return
	}
	expiries := monthlyExpiries(now, 3)
	futures := make([]*futState, 0, len(expiries))
	for _, exp := range expiries {
		tsym := st.inst.Symbol + strings.ToUpper(exp.Format("02Jan06")) + "FUT"
		f := &futState{
			contract: model.Contract{
				Underlying:    st.inst.Symbol,
				Token:         "SIM-" + tsym,
				TradingSymbol: tsym,
				Exchange:      futExchange,
				Expiry:        exp,
			},
			oi: int64(1_000_000 + m.rng.Intn(500_000)),
		}
		carry := m.rate * f.contract.DaysToExpiry(now) / 365
		f.price = roundTick(st.price * (1 + carry))
		futures = append(futures, f)
	}
	sort.Slice(futures, func(i, j int) bool {
		return futures[i].contract.Expiry.Before(futures[j].contract.Expiry)
	})
	st.futures = futures
}

// monthlyExpiries returns the next n last-Tuesday-of-month expiries at 15:30
// IST that are not before now.
func monthlyExpiries(now time.Time, n int) []time.Time {
	local := now.In(markethours.IST)
	y, mo := local.Year(), local.Month()
	var out []time.Time
	for len(out) < n {
		exp := lastWeekday(y, mo, time.Tuesday)
		if !exp.Before(now) {
			out = append(out, exp)
		}
		mo++
		if mo > time.December {
			mo, y = time.January, y+1
		}
	}
	return out
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := time.Date(year, month+1, 0, 15, 30, 0, 0, markethours.IST)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// weeklyExpiry returns the next Tuesday 15:30 IST at or after now.
func weeklyExpiry(now time.Time) time.Time {
	local := now.In(markethours.IST)
	d := time.Date(local.Year(), local.Month(), local.Day(), 15, 30, 0, 0, markethours.IST)
	for d.Weekday() != time.Tuesday || d.Before(now) {
		d = d.AddDate(0, 0, 1)
		d = time.Date(d.Year(), d.Month(), d.Day(), 15, 30, 0, 0, markethours.IST)
	}
	return d
}

func roundTick(v float64) float64 {
	return indicator.Round2(math.Round(v/tickSize) * tickSize)
}

func ptr[T any](v T) *T { return &v }
