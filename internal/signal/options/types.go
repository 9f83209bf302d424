// Package options scores an option chain: per-strike Black-Scholes Greeks,
// an additive per-leg buy score and a market-wide directional bias blended
// from put/call positioning.
package options

import (
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/indicator"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Leg is one side (CE or PE) of a strike as quoted by the provider.
type Leg struct {
	LTP      float64 `json:"ltp"`
	IV       float64 `json:"iv"` // annualized, as a fraction; 0 when not quoted
	OI       int64   `json:"oi"`
	OIChange int64   `json:"oi_change"`
	Volume   int64   `json:"volume"`
}

// StrikeInput is one strike row of the chain.
type StrikeInput struct {
	Strike float64 `json:"strike"`
	CE     *Leg    `json:"ce,omitempty"`
	PE     *Leg    `json:"pe,omitempty"`
}

// Chain is one fetched option chain around the spot.
type Chain struct {
	Symbol  string        `json:"symbol"`
	Expiry  time.Time     `json:"expiry"`
	Strikes []StrikeInput `json:"strikes"`
}

// ChainInput is everything one scoring pass needs.
type ChainInput struct {
	Symbol       string
	Spot         float64
	StrikeStep   float64
	DaysToExpiry float64
	RiskFreeRate float64
	Strikes      []StrikeInput

	// Values from the previous refresh, nil on the first pass.
	PrevPCR   *float64
	PrevATMIV *float64

	Now time.Time
}

// LegResult is a scored leg.
type LegResult struct {
	Type     indicator.OptionType `json:"type"`
	LTP      float64              `json:"ltp"`
	IV       float64              `json:"iv"`
	OI       int64                `json:"oi"`
	OIChange int64                `json:"oi_change"`
	Volume   int64                `json:"volume"`
	Greeks   indicator.Greeks     `json:"greeks"`
	Score    float64              `json:"score"`
	Label    string               `json:"label"`
	Reasons  []string             `json:"reasons"`
}

// StrikeResult is a scored strike row.
type StrikeResult struct {
	Strike float64    `json:"strike"`
	ATM    bool       `json:"atm"`
	CE     *LegResult `json:"ce,omitempty"`
	PE     *LegResult `json:"pe,omitempty"`
}

// MarketBias is the chain-wide directional read.
type MarketBias struct {
	PCR                float64           `json:"pcr"`
	PCRAvailable       bool              `json:"pcr_available"`
	ATMIV              float64           `json:"atm_iv"`
	Bias               float64           `json:"bias"`
	Direction          model.Direction   `json:"market_direction"`
	BaseProbability    float64           `json:"base_probability"` // before the OI-change adjustment
	BullishProbability float64           `json:"bullish_probability"`
	Components         []model.Component `json:"components"`
	Reasons            []string          `json:"reasons"`
}

// Pick identifies the best-scoring leg of the chain.
type Pick struct {
	Strike float64              `json:"strike"`
	Type   indicator.OptionType `json:"type"`
	Score  float64              `json:"score"`
	Label  string               `json:"label"`
}

// ChainResult is the full scored chain.
type ChainResult struct {
	Symbol     string             `json:"symbol"`
	Spot       float64            `json:"spot"`
	ATM        float64            `json:"atm"`
	Bias       MarketBias         `json:"bias"`
	Strikes    []StrikeResult     `json:"strikes"`
	Best       *Pick              `json:"best,omitempty"`
	Signal     model.SignalResult `json:"signal"`
	ComputedAt time.Time          `json:"computed_at"`
}

// Leg labels.
const (
	LabelStrongBuy = "STRONG BUY"
	LabelBuy       = "BUY"
	LabelNoSignal  = "NO SIGNAL"
)

// Score thresholds.
const (
	StrongBuyScore = 85
	BuyScore       = 75
)
