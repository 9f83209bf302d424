// Package sqlite archives closed candles and captured session closes. The
// archive warm-starts each symbol's candle ring and backs the previous-day
// reference when the feed omits it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// ErrNoHistory is returned when the archive holds nothing for a query.
var ErrNoHistory = errors.New("sqlite: no history")

// Archive keeps closed candles and session closes in one SQLite file. All
// writes go through a single connection. It implements model.CandleArchive.
type Archive struct {
	db *sql.DB

	batchSize  int
	flushEvery time.Duration

	// OnCommit is called after every committed batch (optional).
	OnCommit func(n int, took time.Duration)
}

var _ model.CandleArchive = (*Archive)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT    NOT NULL,
		ts     INTEGER NOT NULL,
		open   REAL    NOT NULL,
		high   REAL    NOT NULL,
		low    REAL    NOT NULL,
		close  REAL    NOT NULL,
		volume INTEGER,
		ticks  INTEGER,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS session_close (
		symbol TEXT NOT NULL,
		day    TEXT NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		PRIMARY KEY (symbol, day)
	)`,
}

const upsertCandle = `INSERT OR REPLACE INTO candles
	(symbol, ts, open, high, low, close, volume, ticks) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Open opens (or creates) the archive at path in WAL mode.
func Open(path string) (*Archive, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: schema: %w", err)
		}
	}
	log.Printf("[sqlite] archive ready at %s", path)
	return &Archive{db: db, batchSize: 100, flushEvery: 200 * time.Millisecond}, nil
}

// WithBatch sets how many candles a transaction holds and how long a
// partial batch may wait before it is committed anyway.
func (a *Archive) WithBatch(size int, every time.Duration) *Archive {
	if size > 0 {
		a.batchSize = size
	}
	if every > 0 {
		a.flushEvery = every
	}
	return a
}

// Ping checks the database connection.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Run drains candles into the archive until ctx is cancelled or the channel
// closes. Whatever is pending is committed before Run returns.
func (a *Archive) Run(ctx context.Context, candles <-chan model.Candle) {
	pending := make([]model.Candle, 0, a.batchSize)
	tick := time.NewTicker(a.flushEvery)
	defer tick.Stop()

	commit := func() {
		if len(pending) == 0 {
			return
		}
		start := time.Now()
		// ctx may already be done here; the last batch still has to land.
		if err := a.writeCandles(context.Background(), pending); err != nil {
			log.Printf("[sqlite] dropped %d candles: %v", len(pending), err)
		} else if a.OnCommit != nil {
			a.OnCommit(len(pending), time.Since(start))
		}
		pending = pending[:0]
	}
	defer commit()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candles:
			if !ok {
				return
			}
			pending = append(pending, c)
			if len(pending) >= a.batchSize {
				commit()
			}
		case <-tick.C:
			commit()
		}
	}
}

// writeCandles upserts candles in one transaction. A bucket archived twice
// keeps the later candle.
func (a *Archive) writeCandles(ctx context.Context, candles []model.Candle) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertCandle)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range candles {
		if _, err = stmt.ExecContext(ctx, c.Symbol, c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume, c.Ticks); err != nil {
			return fmt.Errorf("candle %s@%s: %w", c.Symbol, c.TS.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// SaveSessionClose records the captured close of the session on day.
func (a *Archive) SaveSessionClose(ctx context.Context, symbol string, day time.Time, ref model.PrevDay) error {
	if !ref.Valid() {
		return fmt.Errorf("sqlite: session close %s: incomplete reference %+v", symbol, ref)
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO session_close (symbol, day, high, low, close)
		VALUES (?, ?, ?, ?, ?)
	`, symbol, markethours.SessionDate(day), ref.High, ref.Low, ref.Close)
	if err != nil {
		return fmt.Errorf("sqlite: session close %s: %w", symbol, err)
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
