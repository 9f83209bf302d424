package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/breaker"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// ErrDataUnavailable means neither a fresh result nor a backup exists.
var ErrDataUnavailable = errors.New("cache: data unavailable")

// Status labels where a fetched result came from.
type Status string

const (
	StatusFresh       Status = "fresh"
	StatusStale       Status = "stale" // served from the long-TTL backup
	StatusUnavailable Status = "unavailable"
)

// Distributor writes every computed result twice: once under a short TTL for
// request absorption and once under a long TTL as the stale fallback. Reads
// prefer the fresh copy and label backup reads stale.
type Distributor struct {
	store     Store
	resultTTL time.Duration
	backupTTL time.Duration
	guard     *breaker.Breaker

	// OnStale is called whenever a read falls back to the backup (optional).
	OnStale func(feature, symbol string)
}

// NewDistributor creates a distributor over store.
func NewDistributor(store Store, resultTTL, backupTTL time.Duration) *Distributor {
	return &Distributor{store: store, resultTTL: resultTTL, backupTTL: backupTTL}
}

// WithBreaker guards store writes with b so a failing store is skipped for
// the breaker's cooldown instead of being hit on every tick.
func (d *Distributor) WithBreaker(b *breaker.Breaker) *Distributor {
	d.guard = b
	return d
}

// Store returns the underlying store.
func (d *Distributor) Store() Store { return d.store }

func (d *Distributor) write(fn func() error) error {
	if d.guard == nil {
		return fn()
	}
	return d.guard.Execute(fn)
}

// PublishResult stores v as the fresh result and as the backup for
// (feature, symbol).
func (d *Distributor) PublishResult(ctx context.Context, feature, symbol string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s/%s: %w", feature, symbol, err)
	}
	return d.write(func() error {
		if err := d.store.Set(ctx, ResultKey(feature, symbol), data, d.resultTTL); err != nil {
			return err
		}
		return d.store.Set(ctx, BackupKey(feature, symbol), data, d.backupTTL)
	})
}

// FetchResult decodes the freshest available result for (feature, symbol)
// into dst. It returns StatusStale when only the backup exists, and
// StatusUnavailable with ErrDataUnavailable when neither does.
func (d *Distributor) FetchResult(ctx context.Context, feature, symbol string, dst any) (Status, error) {
	data, err := d.store.Get(ctx, ResultKey(feature, symbol))
	if err == nil {
		if err := json.Unmarshal(data, dst); err == nil {
			return StatusFresh, nil
		}
	}

	data, berr := d.store.Get(ctx, BackupKey(feature, symbol))
	if berr != nil {
		if errors.Is(berr, ErrMiss) {
			return StatusUnavailable, fmt.Errorf("%w: %s/%s", ErrDataUnavailable, feature, symbol)
		}
		return StatusUnavailable, fmt.Errorf("%w: %s/%s: %v", ErrDataUnavailable, feature, symbol, berr)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return StatusUnavailable, fmt.Errorf("%w: %s/%s: decode backup: %v", ErrDataUnavailable, feature, symbol, err)
	}
	if d.OnStale != nil {
		d.OnStale(feature, symbol)
	}
	return StatusStale, nil
}

// PutSnapshot stores the latest snapshot for its symbol.
func (d *Distributor) PutSnapshot(ctx context.Context, snap model.MarketSnapshot) error {
	return d.putJSON(ctx, SnapshotKey(snap.Symbol), snap, d.backupTTL)
}

// Snapshot returns the latest snapshot for symbol.
func (d *Distributor) Snapshot(ctx context.Context, symbol string) (model.MarketSnapshot, error) {
	var snap model.MarketSnapshot
	return snap, d.getJSON(ctx, SnapshotKey(symbol), &snap)
}

// PutScratch stores a symbol's last-seen values.
func (d *Distributor) PutScratch(ctx context.Context, symbol string, s model.Scratch) error {
	return d.putJSON(ctx, ScratchKey(symbol), s, d.backupTTL)
}

// Scratch returns a symbol's last-seen values.
func (d *Distributor) Scratch(ctx context.Context, symbol string) (model.Scratch, error) {
	var s model.Scratch
	return s, d.getJSON(ctx, ScratchKey(symbol), &s)
}

// PutSummary stores the compact per-symbol record for polling consumers.
func (d *Distributor) PutSummary(ctx context.Context, s model.Summary) error {
	return d.putJSON(ctx, SummaryKey(s.Symbol), s, d.backupTTL)
}

// Summary returns the compact per-symbol record.
func (d *Distributor) Summary(ctx context.Context, symbol string) (model.Summary, error) {
	var s model.Summary
	return s, d.getJSON(ctx, SummaryKey(symbol), &s)
}

// PushCandle appends a closed candle to the symbol's bounded list.
func (d *Distributor) PushCandle(ctx context.Context, c model.Candle) error {
	data := c.JSON()
	return d.write(func() error {
		return d.store.Push(ctx, CandlesKey(c.Symbol), data, MaxCandles)
	})
}

// Candles returns the symbol's cached candles, oldest first.
func (d *Distributor) Candles(ctx context.Context, symbol string) ([]model.Candle, error) {
	raw, err := d.store.Range(ctx, CandlesKey(symbol))
	if err != nil {
		return nil, err
	}
	out := make([]model.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var c model.Candle
		if err := json.Unmarshal(raw[i], &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *Distributor) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return d.write(func() error {
		return d.store.Set(ctx, key, data, ttl)
	})
}

func (d *Distributor) getJSON(ctx context.Context, key string, dst any) error {
	data, err := d.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return fmt.Errorf("%w: %s", ErrDataUnavailable, key)
		}
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}
