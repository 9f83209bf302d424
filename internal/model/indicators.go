package model

// Mode tells consumers how an indicator family was computed.
type Mode string

const (
	ModeExact       Mode = "exact"
	ModeApproximate Mode = "approximate"
)

// Trend groups moving averages and trailing-stop indicators.
type Trend struct {
	Mode          Mode      `json:"mode"`
	EMA9          float64   `json:"ema9"`
	EMA20         float64   `json:"ema20"`
	EMA50         float64   `json:"ema50"`
	SuperTrend    float64   `json:"supertrend"`
	SuperTrendDir Direction `json:"supertrend_dir"`
	PSAR          float64   `json:"psar"`
	PSARTrend     Direction `json:"psar_trend"`
}

// Momentum groups oscillators.
type Momentum struct {
	Mode      Mode    `json:"mode"`
	RSI       float64 `json:"rsi"`
	ChangePct float64 `json:"change_pct"`
}

// VolumeProfile groups volume-weighted values.
type VolumeProfile struct {
	Mode      Mode    `json:"mode"`
	VWAP      float64 `json:"vwap"`
	DayVolume int64   `json:"day_volume"`
	UpVolume  int64   `json:"up_volume"`
	DownVol   int64   `json:"down_volume"`
}

// ClassicPivots are floor-trader pivot levels.
type ClassicPivots struct {
	P  float64 `json:"p"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

// CamarillaPivots are Camarilla equation levels.
type CamarillaPivots struct {
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	R4 float64 `json:"r4"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
	S4 float64 `json:"s4"`
}

// PivotLevels groups both pivot families computed from the previous day.
type PivotLevels struct {
	Available bool            `json:"available"`
	Classic   ClassicPivots   `json:"classic"`
	Camarilla CamarillaPivots `json:"camarilla"`
}

// Risk groups volatility measures.
type Risk struct {
	Mode   Mode    `json:"mode"`
	ATR    float64 `json:"atr"`
	ATRPct float64 `json:"atr_pct"`
}

// Bundle is the per-tick indicator set, grouped by family.
type Bundle struct {
	Trend    Trend         `json:"trend"`
	Momentum Momentum      `json:"momentum"`
	Volume   VolumeProfile `json:"volume"`
	Pivot    PivotLevels   `json:"pivot"`
	Risk     Risk          `json:"risk"`
	Candles  int           `json:"candles"` // closed candles the bundle was computed from
}

// Approximate reports whether any family fell back to the approximate path.
func (b Bundle) Approximate() bool {
	return b.Trend.Mode == ModeApproximate ||
		b.Momentum.Mode == ModeApproximate ||
		b.Volume.Mode == ModeApproximate ||
		b.Risk.Mode == ModeApproximate
}
