// Package compass scores an index's directional bias from six weighted
// factors: VWAP position, EMA alignment, swing structure, futures premium
// over fair value, RSI momentum and volume skew.
package compass

import (
	"fmt"
	"math"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Factor weights. They sum to 1.0.
const (
	WeightVWAP    = 0.25
	WeightEMA     = 0.20
	WeightSwing   = 0.20
	WeightPremium = 0.20
	WeightRSI     = 0.10
	WeightVolume  = 0.05
)

// Classification threshold on the raw weighted score.
const Threshold = 0.18

// Normalization scales.
const (
	vwapScale    = 0.5  // % deviation for a full score
	premiumScale = 0.25 // % excess premium for a full score
	rsiScale     = 20.0
	swingWing    = 2
)

// Input is one compass evaluation.
type Input struct {
	Symbol       string
	Spot         float64
	Bundle       model.Bundle
	Candles      []model.Candle // closed candles, oldest first
	Futures      *model.FuturesQuote
	RiskFreeRate float64
	Now          time.Time
}

type factor struct {
	name      string
	weight    float64
	score     float64
	available bool
	reason    string
}

// Score evaluates the six factors in a fixed order and classifies the
// weighted sum. Missing factors score 0 and are reported unavailable.
func Score(in Input) model.SignalResult {
	factors := []factor{
		vwapFactor(in),
		emaFactor(in),
		swingFactor(in),
		premiumFactor(in),
		rsiFactor(in),
		volumeFactor(in),
	}

	var raw float64
	res := model.SignalResult{ComputedAt: in.Now}
	for _, f := range factors {
		f.score = clampUnit(f.score)
		raw += f.weight * f.score
		res.Components = append(res.Components, model.Component{
			Name:      f.name,
			Weight:    f.weight,
			Score:     indicator.Round2(f.score),
			Available: f.available,
		})
		res.Reasons = append(res.Reasons, f.reason)
	}

	dir := Classify(raw)
	res.Label = string(dir)
	res.Score = math.Round(raw*1e4) / 1e4
	res.Confidence = indicator.Round2(confidence(dir, raw, factors))
	res.Reasons = append(res.Reasons, fmt.Sprintf("%s at %+.3f, confidence %.0f%%", dir, raw, res.Confidence))
	return res
}

// Classify maps a raw score to a direction.
func Classify(raw float64) model.Direction {
	switch {
	case raw >= Threshold:
		return model.Bullish
	case raw <= -Threshold:
		return model.Bearish
	}
	return model.Neutral
}

// confidence is 35 + 62 × (weight share of factors agreeing with the
// direction) for a directional call, and a neutrality band in [40, 60]
// otherwise.
func confidence(dir model.Direction, raw float64, factors []factor) float64 {
	if dir == model.Neutral {
		return 40 + 20*(1-math.Min(1, math.Abs(raw)/Threshold))
	}
	var agree float64
	for _, f := range factors {
		if !f.available {
			continue
		}
		if (dir == model.Bullish && f.score > 0) || (dir == model.Bearish && f.score < 0) {
			agree += f.weight
		}
	}
	return 35 + 62*math.Min(1, agree)
}

func vwapFactor(in Input) factor {
	f := factor{name: "vwap", weight: WeightVWAP}
	v := in.Bundle.Volume
	if v.Mode != model.ModeExact || v.VWAP <= 0 || in.Spot <= 0 {
		f.reason = "VWAP unavailable"
		return f
	}
	dev := (in.Spot - v.VWAP) / v.VWAP * 100
	f.score, f.available = dev/vwapScale, true
	f.reason = fmt.Sprintf("price %+.2f%% vs VWAP %.2f", dev, v.VWAP)
	return f
}

func emaFactor(in Input) factor {
	f := factor{name: "ema", weight: WeightEMA}
	tr := in.Bundle.Trend
	if tr.EMA9 <= 0 || tr.EMA20 <= 0 || tr.EMA50 <= 0 {
		f.reason = "EMA stack unavailable"
		return f
	}
	f.score = (sign(tr.EMA9-tr.EMA20) + sign(tr.EMA20-tr.EMA50)) / 2
	f.available = true
	switch f.score {
	case 1:
		f.reason = "EMA 9 > 20 > 50"
	case -1:
		f.reason = "EMA 9 < 20 < 50"
	default:
		f.reason = fmt.Sprintf("EMA stack mixed (9/20/50 = %.2f/%.2f/%.2f)", tr.EMA9, tr.EMA20, tr.EMA50)
	}
	if tr.Mode == model.ModeApproximate {
		f.reason += " (approximate)"
	}
	return f
}

func swingFactor(in Input) factor {
	f := factor{name: "structure", weight: WeightSwing}
	tally := indicator.SwingStructure(in.Candles, swingWing)
	bull, bear := tally.Bullish(), tally.Bearish()
	if bull+bear == 0 {
		f.reason = "swing structure unavailable"
		return f
	}
	f.score = float64(bull-bear) / float64(bull+bear)
	f.available = true
	f.reason = fmt.Sprintf("structure HH %d HL %d LH %d LL %d",
		tally.HigherHighs, tally.HigherLows, tally.LowerHighs, tally.LowerLows)
	return f
}

// premiumFactor compares the futures premium with the cost-of-carry fair
// premium rate × days/365.
func premiumFactor(in Input) factor {
	f := factor{name: "futures_premium", weight: WeightPremium}
	if in.Futures == nil || in.Futures.Price <= 0 || in.Spot <= 0 {
		f.reason = "futures premium unavailable"
		return f
	}
	days := in.Futures.Contract.DaysToExpiry(in.Now)
	premium := (in.Futures.Price - in.Spot) / in.Spot * 100
	fair := in.RiskFreeRate * days / 365 * 100
	excess := premium - fair
	f.score, f.available = excess/premiumScale, true
	f.reason = fmt.Sprintf("futures premium %.3f%% vs fair %.3f%% (%.1f days)", premium, fair, days)
	return f
}

func rsiFactor(in Input) factor {
	f := factor{name: "rsi", weight: WeightRSI}
	m := in.Bundle.Momentum
	if m.Mode == "" {
		f.reason = "RSI unavailable"
		return f
	}
	f.score, f.available = (m.RSI-50)/rsiScale, true
	f.reason = fmt.Sprintf("RSI %.1f", m.RSI)
	if m.Mode == model.ModeApproximate {
		f.reason += " (approximate)"
	}
	return f
}

func volumeFactor(in Input) factor {
	f := factor{name: "volume", weight: WeightVolume}
	up, down := in.Bundle.Volume.UpVolume, in.Bundle.Volume.DownVol
	if up+down == 0 {
		f.reason = "volume skew unavailable"
		return f
	}
	f.score = float64(up-down) / float64(up+down)
	f.available = true
	f.reason = fmt.Sprintf("volume up %d / down %d", up, down)
	return f
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
