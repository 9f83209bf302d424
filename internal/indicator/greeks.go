package indicator

import "math"

// OptionType is CE (call) or PE (put).
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// Greeks is a Black-Scholes valuation. Theta is per calendar day and Vega
// per one volatility point (1%).
type Greeks struct {
	Price float64 `json:"price"`
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// BlackScholes values a European option with the standard d1/d2 formulation.
// t is in years, vol and r are annualized decimals. When t <= 0 (or vol <= 0)
// the option is worth its intrinsic value and every Greek is zero.
func BlackScholes(spot, strike, t, vol, r float64, typ OptionType) Greeks {
	if t <= 0 || vol <= 0 || spot <= 0 || strike <= 0 {
		return Greeks{Price: intrinsic(spot, strike, typ)}
	}

	sqrtT := math.Sqrt(t)
	d1 := (math.Log(spot/strike) + (r+vol*vol/2)*t) / (vol * sqrtT)
	d2 := d1 - vol*sqrtT
	disc := strike * math.Exp(-r*t)
	pdf := normPDF(d1)

	g := Greeks{
		Gamma: pdf / (spot * vol * sqrtT),
		Vega:  spot * pdf * sqrtT / 100,
	}
	decay := -spot * pdf * vol / (2 * sqrtT)

	if typ == Put {
		g.Price = disc*normCDF(-d2) - spot*normCDF(-d1)
		g.Delta = normCDF(d1) - 1
		g.Theta = (decay + r*disc*normCDF(-d2)) / 365
	} else {
		g.Price = spot*normCDF(d1) - disc*normCDF(d2)
		g.Delta = normCDF(d1)
		g.Theta = (decay - r*disc*normCDF(d2)) / 365
	}
	return g
}

// ImpliedVol solves for the volatility that reprices the option to price by
// bisection on [0.01, 5]. ok is false when the price is outside the model's
// reachable range or the option has expired.
func ImpliedVol(price, spot, strike, t, r float64, typ OptionType) (float64, bool) {
	if t <= 0 || price <= 0 {
		return 0, false
	}
	lo, hi := 0.01, 5.0
	if price < BlackScholes(spot, strike, t, lo, r, typ).Price ||
		price > BlackScholes(spot, strike, t, hi, r, typ).Price {
		return 0, false
	}
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if BlackScholes(spot, strike, t, mid, r, typ).Price < price {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-6 {
			break
		}
	}
	return (lo + hi) / 2, true
}

func intrinsic(spot, strike float64, typ OptionType) float64 {
	if typ == Put {
		return math.Max(strike-spot, 0)
	}
	return math.Max(spot-strike, 0)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
