package options

import (
	"fmt"
	"math"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Bias component weights.
const (
	WeightPCR        = 0.35
	WeightOISkew     = 0.30
	WeightDeltaSkew  = 0.20
	WeightPCRTrend   = 0.10
	WeightVolTrend   = 0.05
	DirectionCut     = 0.15
	MaxOIAdjustment  = 10.0
	probabilityScale = 15.0
)

// chainTotals aggregates open interest across the chain.
type chainTotals struct {
	callOI, putOI   int64
	callChg, putChg int64
}

func totals(strikes []StrikeInput) chainTotals {
	var t chainTotals
	for _, s := range strikes {
		if s.CE != nil {
			t.callOI += s.CE.OI
			t.callChg += s.CE.OIChange
		}
		if s.PE != nil {
			t.putOI += s.PE.OI
			t.putChg += s.PE.OIChange
		}
	}
	return t
}

// marketBias blends the five positioning components. atmCall and atmPut
// are the ATM legs' Greeks (nil when a side is missing); atmIV is the ATM
// implied volatility (0 when unknown).
func marketBias(in ChainInput, t chainTotals, atmCall, atmPut *indicator.Greeks, atmIV float64) MarketBias {
	b := MarketBias{PCR: 1.0, ATMIV: atmIV}
	if t.callOI > 0 {
		b.PCR = float64(t.putOI) / float64(t.callOI)
		b.PCRAvailable = true
	}

	// Each component is normalized to [-1, 1]; missing inputs score 0.
	pcr := clampUnit((b.PCR - 1) / 0.5)

	var oiSkew float64
	oiAvail := t.callOI+t.putOI > 0
	if oiAvail {
		oiSkew = float64(t.putOI-t.callOI) / float64(t.putOI+t.callOI)
	}

	var deltaSkew float64
	deltaAvail := atmCall != nil && atmPut != nil && (atmCall.Delta != 0 || atmPut.Delta != 0)
	if deltaAvail {
		deltaSkew = clampUnit((atmCall.Delta + atmPut.Delta) * 2)
	}

	var pcrTrend float64
	pcrTrendAvail := in.PrevPCR != nil && b.PCRAvailable
	if pcrTrendAvail {
		pcrTrend = clampUnit((b.PCR - *in.PrevPCR) * 5)
	}

	var volTrend float64
	volAvail := in.PrevATMIV != nil && atmIV > 0 && *in.PrevATMIV > 0
	if volAvail {
		// Rising IV reads as fear.
		volTrend = clampUnit(-(atmIV - *in.PrevATMIV) * 10)
	}

	b.Components = []model.Component{
		{Name: "pcr", Weight: WeightPCR, Score: indicator.Round2(pcr), Available: b.PCRAvailable},
		{Name: "oi_skew", Weight: WeightOISkew, Score: indicator.Round2(oiSkew), Available: oiAvail},
		{Name: "atm_delta_skew", Weight: WeightDeltaSkew, Score: indicator.Round2(deltaSkew), Available: deltaAvail},
		{Name: "pcr_trend", Weight: WeightPCRTrend, Score: indicator.Round2(pcrTrend), Available: pcrTrendAvail},
		{Name: "vol_trend", Weight: WeightVolTrend, Score: indicator.Round2(volTrend), Available: volAvail},
	}

	bias := WeightPCR*pcr + WeightOISkew*oiSkew + WeightDeltaSkew*deltaSkew +
		WeightPCRTrend*pcrTrend + WeightVolTrend*volTrend

	switch {
	case bias >= DirectionCut:
		b.Direction = model.Bullish
	case bias <= -DirectionCut:
		b.Direction = model.Bearish
	default:
		b.Direction = model.Neutral
	}

	base := 50 + probabilityScale*bias
	adj := 0.0
	if den := math.Abs(float64(t.putChg)) + math.Abs(float64(t.callChg)); den > 0 {
		adj = MaxOIAdjustment * float64(t.putChg-t.callChg) / den
	}
	b.Bias = indicator.Round2(bias)
	b.BaseProbability = indicator.Round2(base)
	b.BullishProbability = indicator.Round2(math.Max(5, math.Min(95, base+adj)))

	if b.PCRAvailable {
		b.Reasons = append(b.Reasons, fmt.Sprintf("PCR %.2f", b.PCR))
	} else {
		b.Reasons = append(b.Reasons, "PCR unavailable, assumed 1.00")
	}
	if oiAvail {
		b.Reasons = append(b.Reasons, fmt.Sprintf("OI skew %+.2f (put %d / call %d)", oiSkew, t.putOI, t.callOI))
	}
	if deltaAvail {
		b.Reasons = append(b.Reasons, fmt.Sprintf("ATM delta skew %+.2f", deltaSkew))
	}
	if pcrTrendAvail {
		b.Reasons = append(b.Reasons, fmt.Sprintf("PCR trend %+.2f", pcrTrend))
	}
	if volAvail {
		b.Reasons = append(b.Reasons, fmt.Sprintf("volatility trend %+.2f", volTrend))
	}
	if adj != 0 {
		b.Reasons = append(b.Reasons, fmt.Sprintf("OI change adjustment %+.1f", adj))
	}
	b.Reasons = append(b.Reasons, fmt.Sprintf("market %s, bias %+.2f, bullish probability %.1f%%",
		b.Direction, b.Bias, b.BullishProbability))
	return b
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
