package indicator

import (
	"math"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// DefaultATRPeriod is the ATR lookback used by the bundle and SuperTrend.
const DefaultATRPeriod = 10

// TrueRange returns max(H−L, |H−prevClose|, |L−prevClose|). The first bar of
// a window has no previous close and uses H−L.
func TrueRange(c model.Candle, prevClose float64, hasPrev bool) float64 {
	tr := c.High - c.Low
	if !hasPrev {
		return tr
	}
	return math.Max(tr, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATRSeries returns the ATR for every candle index from period-1 onward.
// The first ATR is the simple average of the first period true ranges,
// then Wilder-smoothed.
func ATRSeries(candles []model.Candle, period int) []float64 {
	if period <= 0 || len(candles) < period {
		return nil
	}
	out := make([]float64, 0, len(candles)-period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trAt(candles, i)
	}
	cur := sum / float64(period)
	out = append(out, cur)

	for i := period; i < len(candles); i++ {
		cur = wilder(cur, trAt(candles, i), period)
		out = append(out, cur)
	}
	return out
}

// ATR returns the latest ATR value.
func ATR(candles []model.Candle, period int) (float64, bool) {
	s := ATRSeries(candles, period)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

func trAt(candles []model.Candle, i int) float64 {
	if i == 0 {
		return TrueRange(candles[0], 0, false)
	}
	return TrueRange(candles[i], candles[i-1].Close, true)
}
