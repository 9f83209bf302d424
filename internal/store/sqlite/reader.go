package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Recent returns up to limit of the newest candles for symbol, oldest first.
func (a *Archive) Recent(ctx context.Context, symbol string, limit int) ([]model.Candle, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume, ticks FROM (
			SELECT ts, open, high, low, close, volume, ticks
			FROM candles
			WHERE symbol = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		c := model.Candle{Symbol: symbol}
		var tsUnix int64
		var volume, ticks sql.NullInt64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &volume, &ticks); err != nil {
			return nil, fmt.Errorf("sqlite: scan candles: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		c.Volume = volume.Int64
		c.Ticks = int(ticks.Int64)
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// PrevDay returns the reference of the last session strictly before day. A
// captured session close wins; otherwise the reference is derived from that
// session's archived candles.
func (a *Archive) PrevDay(ctx context.Context, symbol string, day time.Time) (model.PrevDay, error) {
	date := markethours.SessionDate(day)

	var ref model.PrevDay
	err := a.db.QueryRowContext(ctx, `
		SELECT day, high, low, close FROM session_close
		WHERE symbol = ? AND day < ?
		ORDER BY day DESC
		LIMIT 1
	`, symbol, date).Scan(&ref.Date, &ref.High, &ref.Low, &ref.Close)
	switch {
	case err == nil:
		return ref, nil
	case !errors.Is(err, sql.ErrNoRows):
		return model.PrevDay{}, fmt.Errorf("sqlite: session close %s: %w", symbol, err)
	}

	return a.prevDayFromCandles(ctx, symbol, date)
}

func (a *Archive) prevDayFromCandles(ctx context.Context, symbol, date string) (model.PrevDay, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", date, markethours.IST)
	if err != nil {
		return model.PrevDay{}, fmt.Errorf("sqlite: prev day %s: %w", symbol, err)
	}

	var last sql.NullInt64
	err = a.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND ts < ?`,
		symbol, dayStart.Unix(),
	).Scan(&last)
	if err != nil {
		return model.PrevDay{}, fmt.Errorf("sqlite: prev day %s: %w", symbol, err)
	}
	if !last.Valid {
		return model.PrevDay{}, fmt.Errorf("%w: %s before %s", ErrNoHistory, symbol, date)
	}

	lastIST := time.Unix(last.Int64, 0).In(markethours.IST)
	from := time.Date(lastIST.Year(), lastIST.Month(), lastIST.Day(), 0, 0, 0, 0, markethours.IST)
	ref := model.PrevDay{Date: from.Format("2006-01-02")}
	err = a.db.QueryRowContext(ctx, `
		SELECT MAX(high), MIN(low),
			(SELECT close FROM candles WHERE symbol = ? AND ts = ?)
		FROM candles
		WHERE symbol = ? AND ts >= ? AND ts <= ?
	`, symbol, last.Int64, symbol, from.Unix(), last.Int64).Scan(&ref.High, &ref.Low, &ref.Close)
	if err != nil {
		return model.PrevDay{}, fmt.Errorf("sqlite: prev day %s: %w", symbol, err)
	}
	return ref, nil
}
