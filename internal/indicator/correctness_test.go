package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func bar(i int, close float64) model.Candle {
	return model.Candle{
		Symbol: "TEST",
		TS:     time.Unix(int64(i)*60, 0).UTC(),
		Open:   close,
		High:   close + 1,
		Low:    close - 1,
		Close:  close,
		Volume: 100,
	}
}

// rising returns n bars closing at start, start+1, ...
func rising(n int, start float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = bar(i, start+float64(i))
	}
	return out
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_HandCalculated(t *testing.T) {
	// period 3, k = 0.5; seed = (1+2+3)/3 = 2; then 4*0.5+2*0.5 = 3; 5*0.5+3*0.5 = 4
	got := EMASeries([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-9)
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	const c = 24350.5
	series := make([]float64, 60)
	for i := range series {
		series[i] = c
	}
	for period := 1; period <= len(series); period++ {
		for _, v := range EMASeries(series, period) {
			assertClose(t, "EMA constant", v, c, 1e-9)
		}
	}
}

func TestEMA_NotReady(t *testing.T) {
	if _, ok := EMA([]float64{1, 2}, 3); ok {
		t.Error("EMA should not be ready with fewer values than the period")
	}
	if _, ok := EMA(nil, 0); ok {
		t.Error("EMA with period 0 should not be ready")
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_HandCalculated(t *testing.T) {
	// period 2, deltas +1 -1 +1 -1
	// seed: gain 0.5 loss 0.5; +1 -> 0.75/0.25; -1 -> 0.375/0.625; RS 0.6 -> 37.5
	got, ok := RSI([]float64{1, 2, 1, 2, 1}, 2)
	if !ok {
		t.Fatal("expected RSI ready")
	}
	assertClose(t, "RSI(2)", got, 37.5, 1e-9)
}

func TestRSI_AllGainsIs100(t *testing.T) {
	closes := []float64{100, 100, 101, 101, 102, 103, 103, 104, 105, 105, 106, 107, 107, 108, 109, 110}
	got, ok := RSI(closes, DefaultRSIPeriod)
	if !ok {
		t.Fatal("expected RSI ready")
	}
	if got != 100 {
		t.Errorf("RSI with no losses = %v, want 100", got)
	}
}

func TestRSI_Bounded(t *testing.T) {
	closes := make([]float64, 200)
	x := 1000.0
	for i := range closes {
		// deterministic zig-zag with drift
		x += math.Sin(float64(i)*0.7)*15 - 0.3
		closes[i] = x
	}
	for n := DefaultRSIPeriod + 1; n <= len(closes); n++ {
		v, ok := RSI(closes[:n], DefaultRSIPeriod)
		if !ok {
			t.Fatalf("n=%d: expected ready", n)
		}
		if v < 0 || v > 100 || math.IsNaN(v) {
			t.Fatalf("n=%d: RSI %v out of [0,100]", n, v)
		}
	}
}

func TestRSI_AllLossesIsZero(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	got, _ := RSI(closes, DefaultRSIPeriod)
	assertClose(t, "RSI falling", got, 0, 1e-9)
}

// ────────────────────────────────────────────────────────────
// ATR / VWAP
// ────────────────────────────────────────────────────────────

func TestATR_ConstantRange(t *testing.T) {
	got, ok := ATR(rising(30, 100), DefaultATRPeriod)
	if !ok {
		t.Fatal("expected ATR ready")
	}
	assertClose(t, "ATR", got, 2, 1e-9)
}

func TestATR_GapUsesPreviousClose(t *testing.T) {
	candles := []model.Candle{
		{High: 10, Low: 8, Close: 9},
		{High: 15, Low: 13, Close: 14},
	}
	// TR0 = 2, TR1 = max(2, |15-9|, |13-9|) = 6
	got, _ := ATR(candles, 2)
	assertClose(t, "ATR gap", got, 4, 1e-9)

	// Wilder smoothing for the next bar: TR2 = max(1, |14.5-14|, |13.5-14|) = 1
	candles = append(candles, model.Candle{High: 14.5, Low: 13.5, Close: 14})
	got, _ = ATR(candles, 2)
	assertClose(t, "ATR wilder", got, (4*1+1)/2.0, 1e-9)
}

func TestVWAP(t *testing.T) {
	candles := []model.Candle{
		{High: 11, Low: 9, Close: 10, Volume: 1},
		{High: 21, Low: 19, Close: 20, Volume: 3},
	}
	got, ok := VWAP(candles, 0)
	if !ok {
		t.Fatal("expected VWAP defined")
	}
	assertClose(t, "VWAP", got, 17.5, 1e-9)
}

func TestVWAP_ZeroVolumeFallsBack(t *testing.T) {
	got, ok := VWAP([]model.Candle{{High: 11, Low: 9, Close: 10}}, 123.45)
	if ok {
		t.Error("VWAP with zero volume should be undefined")
	}
	if got != 123.45 {
		t.Errorf("fallback = %v, want 123.45", got)
	}
}

// ────────────────────────────────────────────────────────────
// SuperTrend / PSAR
// ────────────────────────────────────────────────────────────

func TestSuperTrend_StaysBullishOnRise(t *testing.T) {
	st, ok := SuperTrend(rising(25, 100), DefaultSuperTrendPeriod, DefaultSuperTrendMult)
	if !ok {
		t.Fatal("expected SuperTrend ready")
	}
	if st.Direction != model.Bullish {
		t.Fatalf("direction = %s, want BULLISH", st.Direction)
	}
	if st.Value != st.Lower {
		t.Errorf("bullish SuperTrend should sit on the lower band")
	}
	// last bar: close 124, hl2 124, ATR 2 -> lower 120
	assertClose(t, "lower band", st.Lower, 120, 1e-9)
}

func TestSuperTrend_FlipsOnCloseBelowLowerBand(t *testing.T) {
	candles := rising(20, 100)
	candles = append(candles, model.Candle{Open: 119, High: 119, Low: 80, Close: 81})
	st, _ := SuperTrend(candles, DefaultSuperTrendPeriod, DefaultSuperTrendMult)
	if st.Direction != model.Bearish {
		t.Fatalf("direction = %s, want BEARISH", st.Direction)
	}
	if st.Value != st.Upper {
		t.Errorf("bearish SuperTrend should sit on the upper band")
	}
}

func TestParabolicSAR_UptrendClamp(t *testing.T) {
	candles := rising(30, 100)
	p, ok := ParabolicSAR(candles)
	if !ok {
		t.Fatal("expected PSAR ready")
	}
	if p.Trend != model.Bullish {
		t.Fatalf("trend = %s, want BULLISH", p.Trend)
	}
	n := len(candles)
	if p.Value > candles[n-2].Low || p.Value > candles[n-3].Low {
		t.Errorf("SAR %v crosses the prior two lows %v/%v", p.Value, candles[n-2].Low, candles[n-3].Low)
	}
	if p.AF > PSARMax+1e-12 {
		t.Errorf("AF %v exceeds cap", p.AF)
	}
	assertClose(t, "AF capped", p.AF, PSARMax, 1e-9)
}

func TestParabolicSAR_FlipsOnReversal(t *testing.T) {
	candles := rising(10, 100)
	for i := 0; i < 10; i++ {
		candles = append(candles, bar(10+i, 106-float64(i)*3))
	}
	p, _ := ParabolicSAR(candles)
	if p.Trend != model.Bearish {
		t.Fatalf("trend = %s, want BEARISH", p.Trend)
	}
	last := candles[len(candles)-1]
	if p.Value < last.High {
		t.Errorf("bearish SAR %v should sit above price high %v", p.Value, last.High)
	}
}

func TestParabolicSAR_NeedsTwoBars(t *testing.T) {
	if _, ok := ParabolicSAR(rising(1, 100)); ok {
		t.Error("PSAR should need two candles")
	}
}

// ────────────────────────────────────────────────────────────
// Pivots / swings
// ────────────────────────────────────────────────────────────

func TestClassicPivots(t *testing.T) {
	p := ClassicPivots(110, 90, 100)
	want := model.ClassicPivots{P: 100, R1: 110, S1: 90, R2: 120, S2: 80, R3: 130, S3: 70}
	if p != want {
		t.Errorf("classic = %+v, want %+v", p, want)
	}
	if !(p.S3 < p.S2 && p.S2 < p.S1 && p.S1 < p.P && p.P < p.R1 && p.R1 < p.R2 && p.R2 < p.R3) {
		t.Error("classic levels not ordered")
	}
}

func TestCamarillaPivots(t *testing.T) {
	p := CamarillaPivots(110, 90, 100)
	assertClose(t, "R1", p.R1, 100+22.0/12, 1e-9)
	assertClose(t, "R4", p.R4, 111, 1e-9)
	assertClose(t, "S4", p.S4, 89, 1e-9)
	if !(p.S4 < p.S3 && p.S3 < p.S2 && p.S2 < p.S1 && p.S1 < p.R1 && p.R1 < p.R2 && p.R2 < p.R3 && p.R3 < p.R4) {
		t.Error("camarilla levels not ordered")
	}
}

func TestPivots_InvalidPrevDay(t *testing.T) {
	if Pivots(model.PrevDay{High: 10}).Available {
		t.Error("pivots should be unavailable without a full previous-day reference")
	}
}

func TestSwingStructure(t *testing.T) {
	highs := []float64{1, 2, 5, 2, 1, 2, 7, 2, 1}
	candles := make([]model.Candle, len(highs))
	for i, h := range highs {
		candles[i] = model.Candle{High: h, Low: h - 1, Close: h - 0.5}
	}
	sh := SwingHighs(candles, 2)
	if len(sh) != 2 || sh[0].Index != 2 || sh[1].Index != 6 {
		t.Fatalf("swing highs = %+v", sh)
	}
	tally := SwingStructure(candles, 2)
	if tally.HigherHighs != 1 || tally.Bearish() != 0 {
		t.Errorf("tally = %+v", tally)
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{4.884: 4.88, 4.885: 4.89, -1.005: -1.01, 0.5893: 0.59}
	for in, want := range cases {
		if got := Round2(in); got != want {
			t.Errorf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}
