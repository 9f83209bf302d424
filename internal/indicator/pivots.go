package indicator

import "github.com/hchalla2021/mytradingSignal-sub000/internal/model"

// ClassicPivots returns floor pivots from the prior period's high, low, close.
func ClassicPivots(high, low, close float64) model.ClassicPivots {
	p := (high + low + close) / 3
	r := high - low
	return model.ClassicPivots{
		P:  p,
		R1: 2*p - low,
		S1: 2*p - high,
		R2: p + r,
		S2: p - r,
		R3: high + 2*(p-low),
		S3: low - 2*(high-p),
	}
}

// CamarillaPivots returns Camarilla levels: close ± range×1.1/{12,6,4,2}.
func CamarillaPivots(high, low, close float64) model.CamarillaPivots {
	r := (high - low) * 1.1
	return model.CamarillaPivots{
		R1: close + r/12,
		R2: close + r/6,
		R3: close + r/4,
		R4: close + r/2,
		S1: close - r/12,
		S2: close - r/6,
		S3: close - r/4,
		S4: close - r/2,
	}
}

// Pivots computes both families from a previous-day reference.
func Pivots(prev model.PrevDay) model.PivotLevels {
	if !prev.Valid() {
		return model.PivotLevels{}
	}
	return model.PivotLevels{
		Available: true,
		Classic:   ClassicPivots(prev.High, prev.Low, prev.Close),
		Camarilla: CamarillaPivots(prev.High, prev.Low, prev.Close),
	}
}
