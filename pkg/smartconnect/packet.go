package smartconnect

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Subscription modes and exchange segments of the smart-stream feed.
const (
	ModeLTP       = 1
	ModeQuote     = 2
	ModeSnapQuote = 3

	NSECM = 1
	NSEFO = 2
	BSECM = 3
	BSEFO = 4
	MCXFO = 5
)

// ExchangeName maps a segment code to the REST exchange name.
var ExchangeName = map[int]string{
	NSECM: "NSE",
	NSEFO: "NFO",
	BSECM: "BSE",
	BSEFO: "BFO",
	MCXFO: "MCX",
}

// Packet sizes per mode.
const (
	ltpPacketLen   = 51
	quotePacketLen = 123
	snapPacketLen  = 379
)

// ErrShortPacket is returned for a binary frame too short for its mode.
var ErrShortPacket = errors.New("smartconnect: short packet")

// Packet is one decoded smart-stream frame. Prices are in paise.
type Packet struct {
	Mode         int
	ExchangeType int
	Token        string
	Sequence     int64
	ExchangeTS   int64 // epoch milliseconds
	LTP          int64

	// Quote and snap-quote modes.
	HasQuote     bool
	LastQty      int64
	AvgPrice     int64
	Volume       int64
	TotalBuyQty  float64
	TotalSellQty float64
	Open         int64
	High         int64
	Low          int64
	Close        int64 // previous session close

	// Snap-quote mode.
	HasSnap      bool
	LastTradedTS int64
	OpenInterest int64
	OIChangePct  float64
	UpperCircuit int64
	LowerCircuit int64
	Week52High   int64
	Week52Low    int64
}

// Time returns the exchange timestamp, or zero when absent.
func (p Packet) Time() time.Time {
	if p.ExchangeTS <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.ExchangeTS).UTC()
}

// ParsePacket decodes a little-endian smart-stream frame.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < ltpPacketLen {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	p := Packet{
		Mode:         int(b[0]),
		ExchangeType: int(b[1]),
		Token:        cString(b[2:27]),
		Sequence:     i64(b[27:35]),
		ExchangeTS:   i64(b[35:43]),
		LTP:          i64(b[43:51]),
	}
	if p.Mode != ModeQuote && p.Mode != ModeSnapQuote {
		return p, nil
	}

	if len(b) < quotePacketLen {
		return p, fmt.Errorf("%w: mode %d with %d bytes", ErrShortPacket, p.Mode, len(b))
	}
	p.HasQuote = true
	p.LastQty = i64(b[51:59])
	p.AvgPrice = i64(b[59:67])
	p.Volume = i64(b[67:75])
	p.TotalBuyQty = f64(b[75:83])
	p.TotalSellQty = f64(b[83:91])
	p.Open = i64(b[91:99])
	p.High = i64(b[99:107])
	p.Low = i64(b[107:115])
	p.Close = i64(b[115:123])
	if p.Mode != ModeSnapQuote {
		return p, nil
	}

	if len(b) < snapPacketLen {
		return p, fmt.Errorf("%w: snap quote with %d bytes", ErrShortPacket, len(b))
	}
	p.HasSnap = true
	p.LastTradedTS = i64(b[123:131])
	p.OpenInterest = i64(b[131:139])
	p.OIChangePct = f64(b[139:147])
	// 147:347 holds best-five depth, not decoded.
	p.UpperCircuit = i64(b[347:355])
	p.LowerCircuit = i64(b[355:363])
	p.Week52High = i64(b[363:371])
	p.Week52Low = i64(b[371:379])
	return p, nil
}

func i64(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) }

func f64(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
