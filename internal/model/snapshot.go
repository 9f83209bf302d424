package model

import "time"

// MarketSnapshot is the latest enriched state for one symbol. Only the
// ingestion task writes it; everyone else reads cached copies.
type MarketSnapshot struct {
	Symbol     string          `json:"symbol"`
	Tick       Tick            `json:"tick"`
	Indicators Bundle          `json:"indicators"`
	Compass    *SignalResult   `json:"compass,omitempty"`
	PrevDay    PrevDay         `json:"prev_day"`
	Futures    *FuturesQuote   `json:"futures,omitempty"`
	Connection ConnectionState `json:"connection"`
	Degraded   bool            `json:"degraded"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// FuturesQuote is the latest near-month futures price for an index.
type FuturesQuote struct {
	Contract Contract  `json:"contract"`
	Price    float64   `json:"price"`
	TS       time.Time `json:"ts"`
}

// Summary is the compact per-symbol record refreshed for polling consumers.
type Summary struct {
	Symbol     string          `json:"symbol"`
	Price      float64         `json:"price"`
	ChangePct  float64         `json:"change_pct"`
	Phase      SessionPhase    `json:"phase"`
	Bias       string          `json:"bias"`
	Confidence float64         `json:"confidence"`
	Connection ConnectionState `json:"connection"`
	Degraded   bool            `json:"degraded"`
	Stale      bool            `json:"stale"`
	TS         time.Time       `json:"ts"`
}
