package gateway

import (
	"strconv"
	"strings"
	"time"
)

// Channel kinds. A channel name is "{kind}:{symbol}".
const (
	KindTick    = "tick"
	KindSummary = "summary"
	KindCompass = "compass"
	KindOptions = "options"
	KindStatus  = "status"
)

// Channel returns the channel name for kind and symbol.
func Channel(kind, symbol string) string { return kind + ":" + symbol }

// channelSymbol returns the symbol part of a channel name, or "" for
// process-wide channels.
func channelSymbol(channel string) string {
	_, sym, ok := strings.Cut(channel, ":")
	if !ok {
		return ""
	}
	return sym
}

// Envelopes are appended by hand on the broadcast path. data must already be
// valid JSON. The layout is
//
//	{"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}
//
// seq counts every broadcast of the hub; channel_seq counts only the channel
// and is what /missed takes as its cursor.
func buildEnvelope(channel string, data []byte, ts time.Time, seq, channelSeq int64) []byte {
	buf := envelopeHead(channel, data, ts)
	buf = append(buf, `,"seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	return append(buf, '}')
}

// buildSnapshotEnvelope re-wraps a channel's last value for a subscriber that
// just connected. It carries "initial":true in place of the hub-wide seq.
func buildSnapshotEnvelope(channel string, v lastValue) []byte {
	buf := envelopeHead(channel, v.Data, v.TS)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, v.Seq, 10)
	return append(buf, `,"initial":true}`...)
}

func envelopeHead(channel string, data []byte, ts time.Time) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	return append(buf, '"')
}
