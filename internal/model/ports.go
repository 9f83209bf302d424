package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the pipeline from concrete storage (SQLite archive).

// CandleArchive persists closed candles and serves warm-start history.
type CandleArchive interface {
	// Run reads closed candles from candleCh and writes them in batches.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Recent returns up to limit of the newest candles for symbol, oldest first.
	Recent(ctx context.Context, symbol string, limit int) ([]Candle, error)

	// PrevDay derives high/low/close of the last session strictly before day.
	PrevDay(ctx context.Context, symbol string, day time.Time) (PrevDay, error)

	// SaveSessionClose records a captured session close for symbol.
	SaveSessionClose(ctx context.Context, symbol string, day time.Time, ref PrevDay) error

	// Close releases underlying resources.
	Close() error
}
