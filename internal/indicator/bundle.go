package indicator

import (
	"math"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Minimum bars for each family's exact path.
const (
	TrendBars    = 50
	MomentumBars = DefaultRSIPeriod + 1
	RiskBars     = DefaultATRPeriod
)

// BundleInput is everything the per-tick bundle is computed from.
type BundleInput struct {
	Closed  []model.Candle // closed candles, oldest first
	Live    *model.Candle  // forming candle for the current bucket, if any
	Tick    model.Tick
	PrevDay model.PrevDay
}

// ComputeBundle computes all indicator families for one tick. A family whose
// history is too short is computed on the approximate path from the tick's
// price, day range and previous close, and is labeled approximate. Exact and
// approximate values are never mixed inside a family.
func ComputeBundle(in BundleInput) model.Bundle {
	series := make([]model.Candle, 0, len(in.Closed)+1)
	series = append(series, in.Closed...)
	if in.Live != nil {
		series = append(series, *in.Live)
	}
	closes := make([]float64, len(series))
	for i, c := range series {
		closes[i] = c.Close
	}

	price := in.Tick.Price
	b := model.Bundle{Candles: len(in.Closed)}

	b.Risk = risk(series, in.Tick)
	b.Trend = trend(series, closes, in.Tick, b.Risk.ATR)
	b.Momentum = momentum(closes, in.Tick)

	vwap, ok := VWAP(series, price)
	up, down := VolumeSplit(series)
	b.Volume = model.VolumeProfile{
		Mode:      model.ModeExact,
		VWAP:      Round2(vwap),
		DayVolume: in.Tick.Volume,
		UpVolume:  up,
		DownVol:   down,
	}
	if !ok {
		b.Volume.Mode = model.ModeApproximate
	}

	b.Pivot = roundPivots(Pivots(in.PrevDay))
	return b
}

func risk(series []model.Candle, tick model.Tick) model.Risk {
	r := model.Risk{Mode: model.ModeExact}
	atr, ok := ATR(series, DefaultATRPeriod)
	if !ok {
		r.Mode = model.ModeApproximate
		atr = tick.High - tick.Low
		if atr <= 0 {
			atr = math.Abs(tick.Price - tick.PrevClose)
		}
	}
	r.ATR = Round2(atr)
	if tick.Price > 0 {
		r.ATRPct = Round2(atr / tick.Price * 100)
	}
	return r
}

func trend(series []model.Candle, closes []float64, tick model.Tick, atr float64) model.Trend {
	if len(series) >= TrendBars {
		ema9, _ := EMA(closes, 9)
		ema20, _ := EMA(closes, 20)
		ema50, _ := EMA(closes, 50)
		st, _ := SuperTrend(series, DefaultSuperTrendPeriod, DefaultSuperTrendMult)
		ps, _ := ParabolicSAR(series)
		return model.Trend{
			Mode:          model.ModeExact,
			EMA9:          Round2(ema9),
			EMA20:         Round2(ema20),
			EMA50:         Round2(ema50),
			SuperTrend:    Round2(st.Value),
			SuperTrendDir: st.Direction,
			PSAR:          Round2(ps.Value),
			PSARTrend:     ps.Trend,
		}
	}

	// Approximate: each EMA moves from the session anchor toward the price
	// by the share of its smoothing window the available bars cover.
	price := tick.Price
	anchor := tick.Open
	if anchor <= 0 {
		anchor = tick.PrevClose
	}
	if anchor <= 0 {
		anchor = price
	}
	n := float64(len(series) + 1)
	approx := func(period int) float64 {
		w := math.Min(1, n*2/float64(period+1))
		return anchor + (price-anchor)*w
	}

	t := model.Trend{
		Mode:  model.ModeApproximate,
		EMA9:  Round2(approx(9)),
		EMA20: Round2(approx(20)),
		EMA50: Round2(approx(50)),
	}
	if price >= anchor {
		t.SuperTrendDir, t.PSARTrend = model.Bullish, model.Bullish
		t.SuperTrend = Round2(price - DefaultSuperTrendMult*atr)
		t.PSAR = tick.Low
		if t.PSAR <= 0 {
			t.PSAR = Round2(price - atr)
		}
	} else {
		t.SuperTrendDir, t.PSARTrend = model.Bearish, model.Bearish
		t.SuperTrend = Round2(price + DefaultSuperTrendMult*atr)
		t.PSAR = tick.High
		if t.PSAR <= 0 {
			t.PSAR = Round2(price + atr)
		}
	}
	return t
}

func momentum(closes []float64, tick model.Tick) model.Momentum {
	m := model.Momentum{Mode: model.ModeExact, ChangePct: Round2(tick.ChangePct())}
	rsi, ok := RSI(closes, DefaultRSIPeriod)
	if !ok {
		m.Mode = model.ModeApproximate
		rsi = clamp(50+tick.ChangePct()*10, 0, 100)
	}
	m.RSI = Round2(rsi)
	return m
}

func roundPivots(p model.PivotLevels) model.PivotLevels {
	if !p.Available {
		return p
	}
	c, k := &p.Classic, &p.Camarilla
	for _, v := range []*float64{&c.P, &c.R1, &c.R2, &c.R3, &c.S1, &c.S2, &c.S3,
		&k.R1, &k.R2, &k.R3, &k.R4, &k.S1, &k.S2, &k.S3, &k.S4} {
		*v = Round2(*v)
	}
	return p
}
