package indicator

import "github.com/hchalla2021/mytradingSignal-sub000/internal/model"

// SuperTrend defaults.
const (
	DefaultSuperTrendPeriod = 10
	DefaultSuperTrendMult   = 2.0
)

// SuperTrendPoint is the indicator value at one bar.
type SuperTrendPoint struct {
	Value     float64
	Direction model.Direction
	Upper     float64
	Lower     float64
}

// SuperTrend computes bands HL2 ± mult×ATR(period). The trend stays BULLISH
// while the close holds above the lower band and flips to BEARISH on a
// close below it; symmetrically a BEARISH trend flips on a close above the
// upper band. Final bands only tighten while the trend holds.
func SuperTrend(candles []model.Candle, period int, mult float64) (SuperTrendPoint, bool) {
	atr := ATRSeries(candles, period)
	if len(atr) == 0 {
		return SuperTrendPoint{}, false
	}

	start := period - 1
	var upper, lower float64
	dir := model.Bullish

	for i := start; i < len(candles); i++ {
		c := candles[i]
		a := atr[i-start]
		basicUpper := c.HL2() + mult*a
		basicLower := c.HL2() - mult*a

		if i == start {
			upper, lower = basicUpper, basicLower
			if c.Close < lower {
				dir = model.Bearish
			}
			continue
		}

		prevClose := candles[i-1].Close
		if basicUpper < upper || prevClose > upper {
			upper = basicUpper
		}
		if basicLower > lower || prevClose < lower {
			lower = basicLower
		}

		switch dir {
		case model.Bullish:
			if c.Close < lower {
				dir = model.Bearish
			}
		case model.Bearish:
			if c.Close > upper {
				dir = model.Bullish
			}
		}
	}

	p := SuperTrendPoint{Direction: dir, Upper: upper, Lower: lower}
	if dir == model.Bullish {
		p.Value = lower
	} else {
		p.Value = upper
	}
	return p, true
}
