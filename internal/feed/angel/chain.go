package angel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/options"
	"github.com/hchalla2021/mytradingSignal-sub000/pkg/smartconnect"
)

// quoteBatch is the market data endpoint's token limit per request.
const quoteBatch = 50

// ErrNoExpiry is returned when no live option expiry is listed.
var ErrNoExpiry = errors.New("angel: no live option expiry")

type optionContract struct {
	token, symbol string
	optionSymbolParts
}

// ChainSource assembles option chains from scrip search, full quotes and
// the option Greek endpoint. OI change is measured against the previous
// fetch of the same contract.
type ChainSource struct {
	api     API
	limiter *rate.Limiter

	// Window is the number of strikes fetched on each side of the ATM strike.
	Window int

	mu        sync.Mutex
	contracts map[string][]optionContract // by option name
	lastOI    map[string]int64            // by token
}

// NewChainSource creates a chain source.
func NewChainSource(api API, limiter *rate.Limiter) *ChainSource {
	return &ChainSource{
		api:       api,
		limiter:   limiter,
		Window:    10,
		contracts: make(map[string][]optionContract),
		lastOI:    make(map[string]int64),
	}
}

// Fetch returns the nearest-expiry chain of inst around spot.
func (c *ChainSource) Fetch(ctx context.Context, inst model.Instrument, spot float64, now time.Time) (options.Chain, error) {
	if inst.OptionName == "" || inst.StrikeStep <= 0 {
		return options.Chain{}, fmt.Errorf("angel: chain: %s has no option name or strike step", inst.Symbol)
	}
	all, err := c.listed(ctx, inst.OptionName, now)
	if err != nil {
		return options.Chain{}, err
	}
	expiry, ok := nearestExpiry(all, now)
	if !ok {
		return options.Chain{}, ErrNoExpiry
	}

	atm := math.Round(spot/inst.StrikeStep) * inst.StrikeStep
	lo := atm - float64(c.Window)*inst.StrikeStep
	hi := atm + float64(c.Window)*inst.StrikeStep
	var window []optionContract
	for _, oc := range all {
		if oc.Expiry.Equal(expiry) && oc.Strike >= lo && oc.Strike <= hi {
			window = append(window, oc)
		}
	}

	quotes, err := c.quotes(ctx, window)
	if err != nil {
		return options.Chain{}, err
	}
	ivs := c.impliedVols(ctx, inst.OptionName, expiry)

	rows := map[float64]*options.StrikeInput{}
	c.mu.Lock()
	for _, oc := range window {
		q, ok := quotes[oc.token]
		if !ok {
			continue
		}
		leg := &options.Leg{
			LTP:    q.LTP,
			OI:     q.OpenInterest,
			Volume: q.TradeVolume,
			IV:     ivs[ivKey{oc.Strike, oc.Type}],
		}
		if prev, seen := c.lastOI[oc.token]; seen {
			leg.OIChange = q.OpenInterest - prev
		}
		c.lastOI[oc.token] = q.OpenInterest

		row, ok := rows[oc.Strike]
		if !ok {
			row = &options.StrikeInput{Strike: oc.Strike}
			rows[oc.Strike] = row
		}
		if oc.Type == indicator.Call {
			row.CE = leg
		} else {
			row.PE = leg
		}
	}
	c.mu.Unlock()

	chain := options.Chain{Symbol: inst.Symbol, Expiry: expiry}
	for _, row := range rows {
		chain.Strikes = append(chain.Strikes, *row)
	}
	sort.Slice(chain.Strikes, func(i, j int) bool { return chain.Strikes[i].Strike < chain.Strikes[j].Strike })
	return chain, nil
}

// listed returns the option contracts of name, searching again once the
// cached nearest expiry has passed.
func (c *ChainSource) listed(ctx context.Context, name string, now time.Time) ([]optionContract, error) {
	c.mu.Lock()
	cached := c.contracts[name]
	c.mu.Unlock()
	if _, ok := nearestExpiry(cached, now); ok {
		return cached, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	scrips, err := c.api.SearchScrip(ctx, "NFO", name)
	if err != nil {
		return nil, classify("search", err)
	}
	var out []optionContract
	for _, s := range scrips {
		parts, ok := parseOptionSymbol(s.TradingSymbol)
		if !ok || parts.Name != name {
			continue
		}
		out = append(out, optionContract{token: s.SymbolToken, symbol: s.TradingSymbol, optionSymbolParts: parts})
	}
	log.Printf("[angel] %s: %d option contracts listed", name, len(out))

	c.mu.Lock()
	c.contracts[name] = out
	c.mu.Unlock()
	return out, nil
}

func (c *ChainSource) quotes(ctx context.Context, window []optionContract) (map[string]smartconnect.MarketQuote, error) {
	out := make(map[string]smartconnect.MarketQuote, len(window))
	for start := 0; start < len(window); start += quoteBatch {
		end := start + quoteBatch
		if end > len(window) {
			end = len(window)
		}
		tokens := make([]string, 0, end-start)
		for _, oc := range window[start:end] {
			tokens = append(tokens, oc.token)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		rows, err := c.api.Quote(ctx, smartconnect.QuoteFull, map[string][]string{"NFO": tokens})
		if err != nil {
			return nil, classify("chain quote", err)
		}
		for _, r := range rows {
			out[r.SymbolToken] = r
		}
	}
	return out, nil
}

type ivKey struct {
	strike float64
	typ    indicator.OptionType
}

// impliedVols returns quoted IVs as fractions. A failed lookup is logged and
// leaves IV unset so the scorer recovers it from the premium.
func (c *ChainSource) impliedVols(ctx context.Context, name string, expiry time.Time) map[ivKey]float64 {
	out := map[ivKey]float64{}
	if err := c.limiter.Wait(ctx); err != nil {
		return out
	}
	rows, err := c.api.OptionGreek(ctx, name, greekExpiry(expiry))
	if err != nil {
		log.Printf("[angel] option greeks %s: %v", name, err)
		return out
	}
	for _, r := range rows {
		typ := indicator.OptionType(r.OptionType)
		if iv := smartconnect.Float(r.ImpliedVolatility); iv > 0 {
			out[ivKey{smartconnect.Float(r.StrikePrice), typ}] = iv / 100
		}
	}
	return out
}

func nearestExpiry(all []optionContract, now time.Time) (time.Time, bool) {
	var best time.Time
	for _, oc := range all {
		if oc.Expiry.Before(now) {
			continue
		}
		if best.IsZero() || oc.Expiry.Before(best) {
			best = oc.Expiry
		}
	}
	return best, !best.IsZero()
}

// FuturesSource lists index futures by scrip search. It implements
// contracts.Source.
type FuturesSource struct {
	api     API
	limiter *rate.Limiter
}

// NewFuturesSource creates a futures source.
func NewFuturesSource(api API, limiter *rate.Limiter) *FuturesSource {
	return &FuturesSource{api: api, limiter: limiter}
}

// Futures returns every listed futures contract whose name matches the
// instrument's futures prefix.
func (f *FuturesSource) Futures(ctx context.Context, inst model.Instrument) ([]model.Contract, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	scrips, err := f.api.SearchScrip(ctx, "NFO", inst.FuturesName)
	if err != nil {
		return nil, classify("search", err)
	}
	var out []model.Contract
	for _, s := range scrips {
		name, expiry, ok := parseFuturesSymbol(s.TradingSymbol)
		if !ok || name != inst.FuturesName {
			continue
		}
		out = append(out, model.Contract{
			Underlying:    inst.Symbol,
			Token:         s.SymbolToken,
			TradingSymbol: s.TradingSymbol,
			Exchange:      "NFO",
			Expiry:        expiry,
		})
	}
	return out, nil
}
