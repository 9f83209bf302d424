package indicator

import (
	"math"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Parabolic SAR acceleration settings.
const (
	PSARStep = 0.02
	PSARMax  = 0.20
)

// PSARPoint is the stop-and-reverse level for the latest bar.
type PSARPoint struct {
	Value   float64
	Trend   model.Direction
	AF      float64
	Extreme float64
}

// ParabolicSAR computes Wilder's SAR. AF starts at 0.02, grows by 0.02 on
// each new extreme and is capped at 0.20. SAR(t) = SAR(t-1) +
// AF×(EP−SAR(t-1)), clamped so it never crosses the prior two bars' low in
// an uptrend or high in a downtrend. A price cross flips the trend, moves
// SAR to the old extreme and resets AF. Needs two candles.
func ParabolicSAR(candles []model.Candle) (PSARPoint, bool) {
	if len(candles) < 2 {
		return PSARPoint{}, false
	}

	up := candles[1].Close >= candles[0].Close
	af := PSARStep
	var sar, ep float64
	if up {
		sar = math.Min(candles[0].Low, candles[1].Low)
		ep = math.Max(candles[0].High, candles[1].High)
	} else {
		sar = math.Max(candles[0].High, candles[1].High)
		ep = math.Min(candles[0].Low, candles[1].Low)
	}

	for i := 2; i < len(candles); i++ {
		c := candles[i]
		sar = sar + af*(ep-sar)

		if up {
			sar = math.Min(sar, math.Min(candles[i-1].Low, candles[i-2].Low))
			if c.Low < sar {
				up = false
				sar = ep
				ep = c.Low
				af = PSARStep
				continue
			}
			if c.High > ep {
				ep = c.High
				af = math.Min(af+PSARStep, PSARMax)
			}
		} else {
			sar = math.Max(sar, math.Max(candles[i-1].High, candles[i-2].High))
			if c.High > sar {
				up = true
				sar = ep
				ep = c.High
				af = PSARStep
				continue
			}
			if c.Low < ep {
				ep = c.Low
				af = math.Min(af+PSARStep, PSARMax)
			}
		}
	}

	p := PSARPoint{Value: sar, AF: af, Extreme: ep, Trend: model.Bearish}
	if up {
		p.Trend = model.Bullish
	}
	return p, true
}
