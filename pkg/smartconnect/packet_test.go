package smartconnect

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func putI64(b []byte, off int, v int64) { binary.LittleEndian.PutUint64(b[off:], uint64(v)) }

func putF64(b []byte, off int, v float64) {
	binary.LittleEndian.PutUint64(b[off:], math.Float64bits(v))
}

func frame(mode, size int) []byte {
	b := make([]byte, size)
	b[0] = byte(mode)
	b[1] = NSECM
	copy(b[2:27], "26000")
	putI64(b, 27, 42)
	putI64(b, 35, 1773117000000)
	putI64(b, 43, 2412345)
	return b
}

func TestParsePacketLTP(t *testing.T) {
	p, err := ParsePacket(frame(ModeLTP, ltpPacketLen))
	if err != nil {
		t.Fatal(err)
	}
	if p.Token != "26000" || p.ExchangeType != NSECM || p.Sequence != 42 || p.LTP != 2412345 {
		t.Errorf("packet = %+v", p)
	}
	if p.HasQuote || p.HasSnap {
		t.Error("LTP packet should carry no quote fields")
	}
	if want := time.UnixMilli(1773117000000).UTC(); !p.Time().Equal(want) {
		t.Errorf("Time = %v, want %v", p.Time(), want)
	}
}

func TestParsePacketSnapQuote(t *testing.T) {
	b := frame(ModeSnapQuote, snapPacketLen)
	putI64(b, 67, 1_500_000)  // volume
	putF64(b, 75, 12345.5)    // total buy qty
	putI64(b, 91, 2400000)    // open
	putI64(b, 99, 2420000)    // high
	putI64(b, 107, 2395050)   // low
	putI64(b, 115, 2398000)   // previous close
	putI64(b, 131, 9_876_543) // open interest
	putF64(b, 139, -1.25)     // OI change %

	p, err := ParsePacket(b)
	if err != nil {
		t.Fatal(err)
	}
	if !p.HasQuote || !p.HasSnap {
		t.Fatalf("flags quote=%v snap=%v", p.HasQuote, p.HasSnap)
	}
	if p.Volume != 1_500_000 || p.TotalBuyQty != 12345.5 {
		t.Errorf("volume=%d buy=%v", p.Volume, p.TotalBuyQty)
	}
	if p.Open != 2400000 || p.High != 2420000 || p.Low != 2395050 || p.Close != 2398000 {
		t.Errorf("ohlc = %d %d %d %d", p.Open, p.High, p.Low, p.Close)
	}
	if p.OpenInterest != 9_876_543 || p.OIChangePct != -1.25 {
		t.Errorf("oi=%d change=%v", p.OpenInterest, p.OIChangePct)
	}
}

func TestParsePacketShort(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
	}{
		{"header", make([]byte, 20)},
		{"quote", frame(ModeQuote, 100)},
		{"snap", frame(ModeSnapQuote, 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePacket(tt.b); !errors.Is(err, ErrShortPacket) {
				t.Errorf("err = %v, want ErrShortPacket", err)
			}
		})
	}
}

func TestParsePacketTokenWithoutNUL(t *testing.T) {
	b := frame(ModeLTP, ltpPacketLen)
	copy(b[2:27], "1234567890123456789012345")
	p, err := ParsePacket(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Token) != 25 {
		t.Errorf("token = %q", p.Token)
	}
}
