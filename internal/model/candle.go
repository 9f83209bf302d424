package model

import (
	"encoding/json"
	"time"
)

// Candle is an OHLCV record for one symbol and one interval bucket.
// A closed candle is never mutated.
type Candle struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"` // bucket start (UTC)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	Ticks  int       `json:"ticks"`
}

// TypicalPrice is (H+L+C)/3.
func (c Candle) TypicalPrice() float64 { return (c.High + c.Low + c.Close) / 3 }

// HL2 is the bar midpoint.
func (c Candle) HL2() float64 { return (c.High + c.Low) / 2 }

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
