package model

import "time"

// Quote is a provider payload before normalization. Optional vendor fields are
// nil when the provider omitted them; normalization resolves them once.
type Quote struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	LTP      float64   `json:"ltp"` // rupees
	Open     *float64  `json:"open,omitempty"`
	High     *float64  `json:"high,omitempty"`
	Low      *float64  `json:"low,omitempty"`
	DayClose *float64  `json:"day_close,omitempty"` // vendor "close": the previous session's close
	Volume   *int64    `json:"volume,omitempty"`
	OI       *int64    `json:"oi,omitempty"`
	TS       time.Time `json:"ts"`

	// Previous-day reference, present on snapshot-style payloads only.
	PrevHigh  *float64 `json:"prev_high,omitempty"`
	PrevLow   *float64 `json:"prev_low,omitempty"`
	PrevClose *float64 `json:"prev_close,omitempty"`

	Source string `json:"source"` // stream | poll | sim | refresh
}

// Tick is one normalized market update for one symbol. Immutable once created.
type Tick struct {
	Symbol          string       `json:"symbol"`
	Token           string       `json:"token"`
	Price           float64      `json:"price"`
	Open            float64      `json:"open"`
	High            float64      `json:"high"`
	Low             float64      `json:"low"`
	PrevClose       float64      `json:"prev_close"`
	PrevCloseSource string       `json:"prev_close_source"` // provided | cached | price
	Volume          int64        `json:"volume"`
	OI              int64        `json:"oi"`
	TS              time.Time    `json:"ts"`
	Phase           SessionPhase `json:"phase"`
	Source          string       `json:"source"`
}

// ChangePct returns the percentage change against the previous close.
func (t Tick) ChangePct() float64 {
	if t.PrevClose == 0 {
		return 0
	}
	return (t.Price - t.PrevClose) / t.PrevClose * 100
}

// Scratch holds the per-symbol last-seen values mirrored to the cache.
type Scratch struct {
	LastPrice  float64   `json:"last_price"`
	LastOI     int64     `json:"last_oi"`
	LastUpdate time.Time `json:"last_update"`
}

// PrevDay is the previous session's high/low/close reference.
type PrevDay struct {
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
	Date  string  `json:"date,omitempty"` // session the reference was captured for, YYYY-MM-DD
}

// Valid reports whether all three levels are populated.
func (p PrevDay) Valid() bool { return p.High > 0 && p.Low > 0 && p.Close > 0 }
