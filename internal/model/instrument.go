package model

import "time"

// Instrument kinds.
const (
	KindIndex  = "index"
	KindFuture = "future"
)

// Instrument is one entry of the subscribed universe.
type Instrument struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	Exchange     string  `json:"exchange" yaml:"exchange"`
	ExchangeType int     `json:"exchange_type" yaml:"exchange_type"` // SmartAPI segment code
	Token        string  `json:"token" yaml:"token"`
	Kind         string  `json:"kind" yaml:"kind"`
	StrikeStep   float64 `json:"strike_step,omitempty" yaml:"strike_step"`
	OptionName   string  `json:"option_name,omitempty" yaml:"option_name"`
	FuturesName  string  `json:"futures_name,omitempty" yaml:"futures_name"`
	Underlying   string  `json:"underlying,omitempty" yaml:"underlying"` // futures only
}

// Key returns "exchange:token".
func (i Instrument) Key() string {
	return i.Exchange + ":" + i.Token
}

// Contract identifies one futures contract month.
type Contract struct {
	Underlying    string    `json:"underlying"`
	Token         string    `json:"token"`
	TradingSymbol string    `json:"trading_symbol"`
	Exchange      string    `json:"exchange"`
	Expiry        time.Time `json:"expiry"`
}

// DaysToExpiry returns whole calendar days from now to expiry, never negative.
func (c Contract) DaysToExpiry(now time.Time) float64 {
	d := c.Expiry.Sub(now).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// ContractSet holds the near, next and far months for one underlying.
type ContractSet struct {
	Underlying string    `json:"underlying"`
	Near       *Contract `json:"near,omitempty"`
	Next       *Contract `json:"next,omitempty"`
	Far        *Contract `json:"far,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}
