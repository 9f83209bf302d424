package options

import (
	"fmt"
	"math"
	"sort"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Per-leg category caps. Direction and PCR alignment together make up the
// 30-point market alignment category.
const (
	PointsDirection = 20
	PointsPCR       = 10
	PointsDelta     = 25
	PointsGamma     = 20
	PointsOIBuild   = 20
	PointsMoneyness = 15
	PointsVega      = 10
)

// leg is a leg with its resolved volatility and Greeks, before scoring.
type leg struct {
	strike float64
	typ    indicator.OptionType
	in     Leg
	vol    float64
	greeks indicator.Greeks
}

// Score evaluates the chain. It is a pure function of in.
func Score(in ChainInput) ChainResult {
	strikes := make([]StrikeInput, len(in.Strikes))
	copy(strikes, in.Strikes)
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].Strike < strikes[j].Strike })

	res := ChainResult{Symbol: in.Symbol, Spot: in.Spot, ComputedAt: in.Now}
	T := in.DaysToExpiry / 365
	res.ATM = atmStrike(strikes, in.Spot)

	// Resolve Greeks for every leg first: gamma and vega are scored
	// relative to the chain maximum.
	rows := make([][2]*leg, len(strikes))
	var maxGamma, maxVega float64
	for i, s := range strikes {
		for side, pair := range []struct {
			typ indicator.OptionType
			in  *Leg
		}{{indicator.Call, s.CE}, {indicator.Put, s.PE}} {
			if pair.in == nil {
				continue
			}
			l := resolve(in, s.Strike, T, pair.typ, *pair.in)
			rows[i][side] = l
			maxGamma = math.Max(maxGamma, l.greeks.Gamma)
			maxVega = math.Max(maxVega, l.greeks.Vega)
		}
	}

	var atmCall, atmPut *indicator.Greeks
	var ivSum float64
	var ivN int
	for i, s := range strikes {
		if s.Strike != res.ATM {
			continue
		}
		if ce := rows[i][0]; ce != nil {
			atmCall = &ce.greeks
			if ce.vol > 0 {
				ivSum += ce.vol
				ivN++
			}
		}
		if pe := rows[i][1]; pe != nil {
			atmPut = &pe.greeks
			if pe.vol > 0 {
				ivSum += pe.vol
				ivN++
			}
		}
	}
	var atmIV float64
	if ivN > 0 {
		atmIV = ivSum / float64(ivN)
	}

	res.Bias = marketBias(in, totals(strikes), atmCall, atmPut, atmIV)

	sc := legScorer{
		direction: res.Bias.Direction,
		pcr:       res.Bias.PCR,
		atm:       res.ATM,
		step:      strikeStep(in.StrikeStep, strikes),
		maxGamma:  maxGamma,
		maxVega:   maxVega,
	}
	for i, s := range strikes {
		row := StrikeResult{Strike: s.Strike, ATM: s.Strike == res.ATM}
		if l := rows[i][0]; l != nil {
			row.CE = sc.score(l)
		}
		if l := rows[i][1]; l != nil {
			row.PE = sc.score(l)
		}
		res.Strikes = append(res.Strikes, row)
	}

	res.Best = bestPick(res.Strikes)
	res.Signal = signal(res)
	return res
}

func resolve(in ChainInput, strike, T float64, typ indicator.OptionType, l Leg) *leg {
	vol := l.IV
	if vol <= 0 && l.LTP > 0 {
		if iv, ok := indicator.ImpliedVol(l.LTP, in.Spot, strike, T, in.RiskFreeRate, typ); ok {
			vol = iv
		}
	}
	return &leg{
		strike: strike,
		typ:    typ,
		in:     l,
		vol:    vol,
		greeks: indicator.BlackScholes(in.Spot, strike, T, vol, in.RiskFreeRate, typ),
	}
}

// atmStrike returns the strike nearest spot; ties go to the lower strike.
func atmStrike(strikes []StrikeInput, spot float64) float64 {
	best, bestDist := 0.0, math.Inf(1)
	for _, s := range strikes {
		if d := math.Abs(s.Strike - spot); d < bestDist {
			best, bestDist = s.Strike, d
		}
	}
	return best
}

// strikeStep returns the configured step or the smallest gap in the chain.
func strikeStep(step float64, strikes []StrikeInput) float64 {
	if step > 0 {
		return step
	}
	for i := 1; i < len(strikes); i++ {
		if d := strikes[i].Strike - strikes[i-1].Strike; d > 0 && (step == 0 || d < step) {
			step = d
		}
	}
	if step == 0 {
		step = 1
	}
	return step
}

type legScorer struct {
	direction model.Direction
	pcr       float64
	atm       float64
	step      float64
	maxGamma  float64
	maxVega   float64
}

// score adds the category points in a fixed order and records a reason for
// each. The result is clamped to [0, 100].
func (s legScorer) score(l *leg) *LegResult {
	r := &LegResult{
		Type: l.typ, LTP: l.in.LTP, IV: indicator.Round2(l.vol * 100),
		OI: l.in.OI, OIChange: l.in.OIChange, Volume: l.in.Volume,
		Greeks: roundGreeks(l.greeks),
	}
	if l.in.LTP <= 0 {
		r.Label = LabelNoSignal
		r.Reasons = []string{"no traded premium"}
		return r
	}

	var total float64
	add := func(points float64, format string, args ...any) {
		total += points
		r.Reasons = append(r.Reasons, fmt.Sprintf("%+.1f ", points)+fmt.Sprintf(format, args...))
	}

	call := l.typ == indicator.Call

	// Market alignment.
	switch {
	case s.direction == model.Neutral:
		add(PointsDirection/2, "market neutral")
	case (s.direction == model.Bullish) == call:
		add(PointsDirection, "aligned with %s market", s.direction)
	default:
		add(0, "against %s market", s.direction)
	}
	switch {
	case (call && s.pcr >= 1.1) || (!call && s.pcr <= 0.9):
		add(PointsPCR, "PCR %.2f supports %s", s.pcr, l.typ)
	case s.pcr > 0.9 && s.pcr < 1.1:
		add(PointsPCR/2, "PCR %.2f balanced", s.pcr)
	default:
		add(0, "PCR %.2f opposes %s", s.pcr, l.typ)
	}

	// Delta strength.
	d := math.Abs(l.greeks.Delta)
	var dp float64
	switch {
	case d >= 0.5:
		dp = PointsDelta
	case d >= 0.4:
		dp = 20
	case d >= 0.3:
		dp = 12
	case d >= 0.2:
		dp = 6
	}
	add(dp, "delta %.2f", l.greeks.Delta)

	// Gamma and vega relative to the chain maximum.
	var gp float64
	if s.maxGamma > 0 {
		gp = PointsGamma * l.greeks.Gamma / s.maxGamma
	}
	add(gp, "gamma %.5f", l.greeks.Gamma)

	// OI build: a 20% rise in open interest saturates the category.
	var op float64
	if l.in.OI > 0 && l.in.OIChange > 0 {
		op = PointsOIBuild * math.Min(1, float64(l.in.OIChange)/float64(l.in.OI)/0.2)
	}
	add(op, "OI change %+d", l.in.OIChange)

	add(s.moneyness(l), "%s", s.moneynessLabel(l))

	var vp float64
	if s.maxVega > 0 {
		vp = PointsVega * l.greeks.Vega / s.maxVega
	}
	add(vp, "vega %.2f", l.greeks.Vega)

	// Theta decay as a share of premium per day.
	decay := math.Abs(l.greeks.Theta) / l.in.LTP * 100
	var penalty float64
	switch {
	case decay >= 7:
		penalty = 15
	case decay >= 4:
		penalty = 10
	case decay >= 2:
		penalty = 5
	}
	add(-penalty, "theta decay %.1f%%/day", decay)

	r.Score = indicator.Round2(math.Max(0, math.Min(100, total)))
	switch {
	case r.Score >= StrongBuyScore:
		r.Label = LabelStrongBuy
	case r.Score >= BuyScore:
		r.Label = LabelBuy
	default:
		r.Label = LabelNoSignal
	}
	return r
}

// itmSteps is positive for in-the-money strikes, in strike steps.
func (s legScorer) itmSteps(l *leg) float64 {
	diff := (s.atm - l.strike) / s.step
	if l.typ == indicator.Put {
		diff = -diff
	}
	return diff
}

func (s legScorer) moneyness(l *leg) float64 {
	if l.strike == s.atm {
		return PointsMoneyness
	}
	n := s.itmSteps(l)
	switch {
	case n > 0 && n <= 2:
		return 10
	case n < 0 && n >= -1:
		return 8
	case n > 2:
		return 5
	}
	return 0
}

func (s legScorer) moneynessLabel(l *leg) string {
	n := s.itmSteps(l)
	switch {
	case l.strike == s.atm:
		return "ATM"
	case n > 0:
		return fmt.Sprintf("ITM %.0f steps", n)
	}
	return fmt.Sprintf("OTM %.0f steps", -n)
}

func roundGreeks(g indicator.Greeks) indicator.Greeks {
	return indicator.Greeks{
		Price: indicator.Round2(g.Price),
		Delta: math.Round(g.Delta*1e4) / 1e4,
		Gamma: math.Round(g.Gamma*1e6) / 1e6,
		Theta: indicator.Round2(g.Theta),
		Vega:  indicator.Round2(g.Vega),
	}
}

// bestPick returns the highest-scoring leg with a buy label. Ties go to the
// lower strike, then CE before PE.
func bestPick(rows []StrikeResult) *Pick {
	var best *Pick
	consider := func(strike float64, r *LegResult) {
		if r == nil || r.Label == LabelNoSignal {
			return
		}
		if best == nil || r.Score > best.Score {
			best = &Pick{Strike: strike, Type: r.Type, Score: r.Score, Label: r.Label}
		}
	}
	for _, row := range rows {
		consider(row.Strike, row.CE)
		consider(row.Strike, row.PE)
	}
	return best
}

func signal(res ChainResult) model.SignalResult {
	b := res.Bias
	conf := math.Max(b.BullishProbability, 100-b.BullishProbability)
	reasons := append([]string(nil), b.Reasons...)
	if res.Best != nil {
		reasons = append(reasons, fmt.Sprintf("best %s %.0f %s score %.0f", res.Best.Label, res.Best.Strike, res.Best.Type, res.Best.Score))
	} else {
		reasons = append(reasons, "no strike qualifies")
	}
	return model.SignalResult{
		Label:      string(b.Direction),
		Score:      b.Bias,
		Confidence: indicator.Round2(conf),
		Reasons:    reasons,
		Components: b.Components,
		ComputedAt: res.ComputedAt,
	}
}
