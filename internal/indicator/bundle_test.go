package indicator

import (
	"testing"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

func tickAt(price float64) model.Tick {
	return model.Tick{
		Symbol: "NIFTY", Price: price, Open: 100, High: price + 2, Low: 98,
		PrevClose: 100, TS: time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC),
	}
}

func TestComputeBundle_ShortHistoryIsApproximate(t *testing.T) {
	in := BundleInput{Closed: rising(5, 100), Tick: tickAt(105)}
	b := ComputeBundle(in)

	if b.Trend.Mode != model.ModeApproximate || b.Momentum.Mode != model.ModeApproximate || b.Risk.Mode != model.ModeApproximate {
		t.Fatalf("expected approximate families, got trend=%s momentum=%s risk=%s",
			b.Trend.Mode, b.Momentum.Mode, b.Risk.Mode)
	}
	if !b.Approximate() {
		t.Error("bundle should report approximate")
	}
	// change 5% -> 50 + 50 clamps to 100
	if b.Momentum.RSI != 100 {
		t.Errorf("approximate RSI = %v, want 100", b.Momentum.RSI)
	}
	if b.Trend.SuperTrendDir != model.Bullish {
		t.Errorf("price above anchor should be bullish")
	}
	if b.Pivot.Available {
		t.Error("pivots should be unavailable without a previous day")
	}
}

func TestComputeBundle_LongHistoryIsExact(t *testing.T) {
	closed := rising(60, 100)
	live := bar(60, 160)
	in := BundleInput{
		Closed:  closed,
		Live:    &live,
		Tick:    tickAt(160),
		PrevDay: model.PrevDay{High: 110, Low: 90, Close: 100},
	}
	b := ComputeBundle(in)
	if b.Approximate() {
		t.Fatalf("expected exact bundle: %+v", b)
	}
	if b.Candles != 60 {
		t.Errorf("candles = %d, want 60", b.Candles)
	}
	if !(b.Trend.EMA9 > b.Trend.EMA20 && b.Trend.EMA20 > b.Trend.EMA50) {
		t.Errorf("rising series should stack EMAs: %+v", b.Trend)
	}
	if b.Momentum.RSI != 100 {
		t.Errorf("RSI = %v, want 100", b.Momentum.RSI)
	}
	assertClose(t, "ATR", b.Risk.ATR, 2, 1e-9)
	if !b.Pivot.Available || b.Pivot.Classic.P != 100 {
		t.Errorf("pivots = %+v", b.Pivot)
	}
}

func TestComputeBundle_ZeroVolumeVWAPFallsBack(t *testing.T) {
	closed := rising(20, 100)
	for i := range closed {
		closed[i].Volume = 0
	}
	b := ComputeBundle(BundleInput{Closed: closed, Tick: tickAt(119)})
	if b.Volume.Mode != model.ModeApproximate || b.Volume.VWAP != 119 {
		t.Errorf("volume = %+v", b.Volume)
	}
}

func TestComputeBundle_Deterministic(t *testing.T) {
	in := BundleInput{Closed: rising(30, 100), Tick: tickAt(130), PrevDay: model.PrevDay{High: 110, Low: 90, Close: 100}}
	a, b := ComputeBundle(in), ComputeBundle(in)
	if a != b {
		t.Error("identical inputs produced different bundles")
	}
}
