package indicator

import "github.com/hchalla2021/mytradingSignal-sub000/internal/model"

// SwingPoint is a local extreme confirmed by wing bars on each side.
type SwingPoint struct {
	Index int
	Price float64
}

// SwingTally counts the structure between consecutive swing points.
type SwingTally struct {
	HigherHighs int
	LowerHighs  int
	HigherLows  int
	LowerLows   int
}

// Bullish returns HH + HL.
func (s SwingTally) Bullish() int { return s.HigherHighs + s.HigherLows }

// Bearish returns LH + LL.
func (s SwingTally) Bearish() int { return s.LowerHighs + s.LowerLows }

// SwingHighs finds bars whose high is strictly above the wing bars on both sides.
func SwingHighs(candles []model.Candle, wing int) []SwingPoint {
	var out []SwingPoint
	for i := wing; i < len(candles)-wing; i++ {
		h := candles[i].High
		ok := true
		for j := i - wing; j <= i+wing && ok; j++ {
			if j != i && candles[j].High >= h {
				ok = false
			}
		}
		if ok {
			out = append(out, SwingPoint{Index: i, Price: h})
		}
	}
	return out
}

// SwingLows finds bars whose low is strictly below the wing bars on both sides.
func SwingLows(candles []model.Candle, wing int) []SwingPoint {
	var out []SwingPoint
	for i := wing; i < len(candles)-wing; i++ {
		l := candles[i].Low
		ok := true
		for j := i - wing; j <= i+wing && ok; j++ {
			if j != i && candles[j].Low <= l {
				ok = false
			}
		}
		if ok {
			out = append(out, SwingPoint{Index: i, Price: l})
		}
	}
	return out
}

// SwingStructure tallies higher/lower highs and lows across consecutive
// swing points.
func SwingStructure(candles []model.Candle, wing int) SwingTally {
	var t SwingTally
	highs := SwingHighs(candles, wing)
	for i := 1; i < len(highs); i++ {
		switch {
		case highs[i].Price > highs[i-1].Price:
			t.HigherHighs++
		case highs[i].Price < highs[i-1].Price:
			t.LowerHighs++
		}
	}
	lows := SwingLows(candles, wing)
	for i := 1; i < len(lows); i++ {
		switch {
		case lows[i].Price > lows[i-1].Price:
			t.HigherLows++
		case lows[i].Price < lows[i-1].Price:
			t.LowerLows++
		}
	}
	return t
}
