// Package closedetector captures a symbol's session close by watching the
// last price settle after 15:30. The captured close becomes the previous
// close reference for the next session.
package closedetector

import (
	"log"
	"time"
)

// Detector observes one symbol's prices after the session close time and
// reports when the closing price has been captured.
type Detector struct {
	symbol      string
	lastPrice   float64
	high, low   float64
	stableSince time.Time
	closeTime   time.Time
	captured    bool

	// StableFor is how long the price must stay unchanged after close to be
	// taken as the closing price. Default: 30 seconds.
	StableFor time.Duration

	// MaxGrace is the hard deadline after closeTime. If the price has not
	// settled by then, the last seen price is taken. Default: 5 minutes.
	MaxGrace time.Duration
}

// New creates a Detector for symbol and the given close time.
func New(symbol string, closeTime time.Time) *Detector {
	return &Detector{
		symbol:    symbol,
		closeTime: closeTime,
		StableFor: 30 * time.Second,
		MaxGrace:  5 * time.Minute,
	}
}

// CloseTime returns the session close time this detector watches.
func (d *Detector) CloseTime() time.Time { return d.closeTime }

// IsPostClose returns true if now is after the session close time.
func (d *Detector) IsPostClose(now time.Time) bool {
	return now.After(d.closeTime)
}

// Observe records a price seen at now and returns true exactly once, when
// the closing price is captured (price settled or hard deadline reached).
func (d *Detector) Observe(price float64, now time.Time) bool {
	if d.captured || price <= 0 {
		return false
	}
	d.track(price)

	if now.After(d.closeTime.Add(d.MaxGrace)) {
		d.lastPrice = price
		d.captured = true
		log.Printf("[closedetector] %s hard deadline %v reached, close=%.2f", d.symbol, d.MaxGrace, price)
		return true
	}

	if !d.IsPostClose(now) {
		d.lastPrice = price
		return false
	}

	if price != d.lastPrice {
		d.lastPrice = price
		d.stableSince = now
		return false
	}

	if d.stableSince.IsZero() {
		d.stableSince = now
		return false
	}

	if now.Sub(d.stableSince) >= d.StableFor {
		d.captured = true
		log.Printf("[closedetector] %s price %.2f stable for %v after close, closing price captured",
			d.symbol, d.lastPrice, d.StableFor)
		return true
	}
	return false
}

func (d *Detector) track(price float64) {
	if d.high == 0 || price > d.high {
		d.high = price
	}
	if d.low == 0 || price < d.low {
		d.low = price
	}
}

// Captured reports whether the close has been captured.
func (d *Detector) Captured() bool { return d.captured }

// ClosingPrice returns the last observed price (the closing price once captured).
func (d *Detector) ClosingPrice() float64 {
	return d.lastPrice
}

// Range returns the high and low of every price observed by this detector.
func (d *Detector) Range() (high, low float64) {
	return d.high, d.low
}
