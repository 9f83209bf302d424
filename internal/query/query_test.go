package query

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/options"
)

type degraded struct{}

func (degraded) Status() session.Status {
	return session.Status{State: model.StateDegradedPolling, Degraded: true}
}

type failingStore struct{ cache.Store }

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func setup(t *testing.T) (*Service, *cache.Distributor, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 10, 4, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dist := cache.NewDistributor(cache.NewMemoryStore().WithClock(clock), 5*time.Second, time.Hour)
	return New(dist, degraded{}).WithClock(clock), dist, &now
}

func TestOptionChainPlaceholder(t *testing.T) {
	svc, _, _ := setup(t)
	got, err := svc.OptionChain(context.Background(), "NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != cache.StatusUnavailable || got.Chain != nil {
		t.Errorf("got %+v", got)
	}
	if got.Signal.Label != string(model.Neutral) || len(got.Signal.Reasons) != 1 {
		t.Errorf("signal = %+v", got.Signal)
	}
	if !got.Degraded || got.Connection != model.StateDegradedPolling {
		t.Errorf("connection = %s degraded = %v", got.Connection, got.Degraded)
	}
}

func TestOptionChainFreshThenStale(t *testing.T) {
	svc, dist, now := setup(t)
	ctx := context.Background()
	res := options.ChainResult{Symbol: "NIFTY", ATM: 25000, Signal: model.SignalResult{Label: "BUY", Score: 78}}
	if err := dist.PublishResult(ctx, cache.FeatureOptions, "NIFTY", res); err != nil {
		t.Fatal(err)
	}

	got, err := svc.OptionChain(ctx, "NIFTY")
	if err != nil || got.Status != cache.StatusFresh || got.Chain == nil || got.Chain.ATM != 25000 {
		t.Fatalf("fresh read: %+v, err %v", got, err)
	}
	if got.Signal.Label != "BUY" {
		t.Errorf("signal = %+v", got.Signal)
	}

	*now = now.Add(time.Minute)
	got, err = svc.OptionChain(ctx, "NIFTY")
	if err != nil || got.Status != cache.StatusStale || got.Chain == nil {
		t.Errorf("stale read: %+v, err %v", got, err)
	}
}

func TestInstantAnalysis(t *testing.T) {
	svc, dist, now := setup(t)
	ctx := context.Background()

	got, err := svc.InstantAnalysis(ctx, "NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != cache.StatusUnavailable || got.Indicators != nil || got.Compass.Label != string(model.Neutral) {
		t.Errorf("empty cache: %+v", got)
	}

	dist.PublishResult(ctx, cache.FeatureIndicators, "NIFTY", model.Bundle{})
	*now = now.Add(time.Minute)
	dist.PublishResult(ctx, cache.FeatureCompass, "NIFTY", model.SignalResult{Label: "BULLISH", Confidence: 72})
	dist.PutSnapshot(ctx, model.MarketSnapshot{
		Symbol:  "NIFTY",
		Tick:    model.Tick{Price: 25250, PrevClose: 25000},
		PrevDay: model.PrevDay{High: 25300, Low: 24900, Close: 25000},
	})

	got, err = svc.InstantAnalysis(ctx, "NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != cache.StatusStale {
		t.Errorf("status = %s, want stale (indicators expired)", got.Status)
	}
	if got.Indicators == nil || got.Compass.Label != "BULLISH" || got.Price != 25250 || math.Abs(got.ChangePct-1) > 1e-9 {
		t.Errorf("analysis = %+v", got)
	}
}

func TestSummaryPlaceholder(t *testing.T) {
	svc, dist, _ := setup(t)
	ctx := context.Background()
	sum, err := svc.Summary(ctx, "BANKNIFTY")
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Stale || sum.Bias != string(model.Neutral) || !sum.Degraded {
		t.Errorf("placeholder summary = %+v", sum)
	}

	dist.PutSummary(ctx, model.Summary{Symbol: "BANKNIFTY", Price: 57000, Bias: "BEARISH"})
	sum, _ = svc.Summary(ctx, "BANKNIFTY")
	if sum.Price != 57000 || sum.Stale {
		t.Errorf("summary = %+v", sum)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	dist := cache.NewDistributor(failingStore{cache.NewMemoryStore()}, time.Second, time.Minute)
	svc := New(dist, nil)
	got, err := svc.OptionChain(context.Background(), "NIFTY")
	if err != nil {
		t.Fatalf("store failure surfaced as error: %v", err)
	}
	if got.Status != cache.StatusUnavailable || got.Connection != model.StateDisconnected {
		t.Errorf("got %+v", got)
	}
}
