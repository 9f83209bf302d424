package indicator

import "github.com/hchalla2021/mytradingSignal-sub000/internal/model"

// VWAP returns Σ(typicalPrice×volume)/Σ(volume). When cumulative volume is
// zero VWAP is undefined and fallback (normally the last price) is returned
// with ok=false.
func VWAP(candles []model.Candle, fallback float64) (float64, bool) {
	var pv, vol float64
	for _, c := range candles {
		if c.Volume <= 0 {
			continue
		}
		pv += c.TypicalPrice() * float64(c.Volume)
		vol += float64(c.Volume)
	}
	if vol == 0 {
		return fallback, false
	}
	return pv / vol, true
}

// VolumeSplit sums volume of candles that closed up versus down.
func VolumeSplit(candles []model.Candle) (up, down int64) {
	for _, c := range candles {
		switch {
		case c.Close > c.Open:
			up += c.Volume
		case c.Close < c.Open:
			down += c.Volume
		}
	}
	return up, down
}
