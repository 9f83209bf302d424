package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return p.err
}

type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

func decode(t *testing.T, raw []byte) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("bad envelope %s: %v", raw, err)
	}
	return e
}

func TestBroadcastEnvelopeSequencing(t *testing.T) {
	h := NewHub(nil)
	c := h.Attach()
	ctx := context.Background()

	h.Broadcast(ctx, Channel(KindTick, "NIFTY"), []byte(`{"price":1}`), time.Time{})
	h.Broadcast(ctx, Channel(KindTick, "BANKNIFTY"), []byte(`{"price":2}`), time.Time{})
	h.Broadcast(ctx, Channel(KindTick, "NIFTY"), []byte(`{"price":3}`), time.Time{})

	want := []struct {
		channel    string
		seq, chSeq int64
	}{
		{"tick:NIFTY", 1, 1},
		{"tick:BANKNIFTY", 2, 1},
		{"tick:NIFTY", 3, 2},
	}
	for i, w := range want {
		e := decode(t, <-c.C())
		if e.Channel != w.channel || e.Seq != w.seq || e.ChannelSeq != w.chSeq {
			t.Errorf("envelope %d = %+v, want %+v", i, e, w)
		}
		if _, err := time.Parse(time.RFC3339Nano, e.TS); err != nil {
			t.Errorf("envelope %d ts %q: %v", i, e.TS, err)
		}
	}
	if got := h.ChannelSeq("tick:NIFTY"); got != 2 {
		t.Errorf("ChannelSeq = %d, want 2", got)
	}
}

func TestSlowSubscriberDroppedWithoutBlockingOthers(t *testing.T) {
	h := NewHub(nil)
	h.SetSendBuffer(2)
	var dropped []string
	h.OnDrop = func(id string) { dropped = append(dropped, id) }

	slow := h.Attach()
	fast := h.Attach()

	ctx := context.Background()
	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range fast.C() {
			received++
			if received == 5 {
				return
			}
		}
	}()

	for i := 0; i < 5; i++ {
		h.Broadcast(ctx, "tick:NIFTY", []byte(`{}`), time.Time{})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fast subscriber got %d of 5", received)
	}

	if len(dropped) != 1 || dropped[0] != slow.ID() {
		t.Fatalf("dropped = %v, want [%s]", dropped, slow.ID())
	}
	if h.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", h.ClientCount())
	}

	// The slow queue holds what fitted and is then closed.
	n := 0
	for range slow.C() {
		n++
	}
	if n != 2 {
		t.Errorf("slow subscriber drained %d, want 2", n)
	}
}

func TestSymbolFilter(t *testing.T) {
	h := NewHub(nil)
	nifty := h.Attach("NIFTY")
	all := h.Attach()
	ctx := context.Background()

	h.Broadcast(ctx, "tick:BANKNIFTY", []byte(`{}`), time.Time{})
	h.Broadcast(ctx, "tick:NIFTY", []byte(`{}`), time.Time{})
	h.Broadcast(ctx, KindStatus, []byte(`{}`), time.Time{})

	if got := len(nifty.C()); got != 2 {
		t.Errorf("filtered subscriber queued %d, want 2", got)
	}
	if got := len(all.C()); got != 3 {
		t.Errorf("unfiltered subscriber queued %d, want 3", got)
	}
	if e := decode(t, <-nifty.C()); e.Channel != "tick:NIFTY" {
		t.Errorf("first filtered envelope on %s", e.Channel)
	}
}

func TestRemoveClientTwice(t *testing.T) {
	h := NewHub(nil)
	c := h.Attach()
	c.Close()
	c.Close()
	if h.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d", h.ClientCount())
	}
	if _, ok := <-c.C(); ok {
		t.Error("queue should be closed")
	}
}

func TestPublishesOnSymbolStream(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewHub(pub)
	ctx := context.Background()

	h.Broadcast(ctx, "compass:NIFTY", []byte(`{}`), time.Time{})
	h.Broadcast(ctx, KindStatus, []byte(`{}`), time.Time{})

	if len(pub.channels) != 1 || pub.channels[0] != "stream:NIFTY" {
		t.Errorf("published on %v", pub.channels)
	}

	pub.err = errors.New("down")
	var failed string
	h.OnPublishError = func(channel string, _ error) { failed = channel }
	h.Broadcast(ctx, "tick:NIFTY", []byte(`{}`), time.Time{})
	if failed != "tick:NIFTY" {
		t.Errorf("publish error not reported, got %q", failed)
	}
}

func TestLatencyRecordedFromSource(t *testing.T) {
	h := NewHub(nil)
	var samples []time.Duration
	h.OnLatency = func(d time.Duration) { samples = append(samples, d) }
	h.Broadcast(context.Background(), "tick:NIFTY", []byte(`{}`), time.Now().Add(-20*time.Millisecond))
	h.Broadcast(context.Background(), "compass:NIFTY", []byte(`{}`), time.Time{})
	if len(samples) != 1 {
		t.Fatalf("latency samples = %d, want 1", len(samples))
	}
	if samples[0] < 20*time.Millisecond {
		t.Errorf("latency = %v, want >= 20ms", samples[0])
	}
}

func TestMissedReplaysAfterSeq(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 4; i++ {
		h.Broadcast(context.Background(), "tick:NIFTY", []byte(`{}`), time.Time{})
	}
	missed := h.Missed("tick:NIFTY", 2)
	if len(missed) != 2 {
		t.Fatalf("missed = %d, want 2", len(missed))
	}
	if e := decode(t, missed[0]); e.ChannelSeq != 3 {
		t.Errorf("first missed channel_seq = %d", e.ChannelSeq)
	}
	if h.Missed("tick:UNKNOWN", 0) != nil {
		t.Error("unknown channel should return nil")
	}
}

func TestCloseRejectsSubscribers(t *testing.T) {
	h := NewHub(nil)
	c := h.Attach()
	h.Close()
	if _, ok := <-c.C(); ok {
		t.Error("existing queue should be closed")
	}
	late := h.Attach()
	if _, ok := <-late.C(); ok {
		t.Error("late subscriber should get a closed queue")
	}
	h.Broadcast(context.Background(), "tick:NIFTY", []byte(`{}`), time.Time{})
}

func TestServeWSRoundTrip(t *testing.T) {
	h := NewHub(nil)
	h.Broadcast(context.Background(), "tick:NIFTY", []byte(`{"price":100}`), time.Time{})

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?symbols=NIFTY"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Initial state first.
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial: %v", err)
	}
	var initial map[string]any
	if err := json.Unmarshal(msg, &initial); err != nil {
		t.Fatalf("initial: %v", err)
	}
	if initial["channel"] != "tick:NIFTY" || initial["initial"] != true {
		t.Errorf("initial = %v", initial)
	}

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Broadcast(context.Background(), "tick:BANKNIFTY", []byte(`{"price":1}`), time.Time{})
	h.Broadcast(context.Background(), "tick:NIFTY", []byte(`{"price":101}`), time.Time{})

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read live: %v", err)
	}
	e := decode(t, []byte(strings.SplitN(string(msg), "\n", 2)[0]))
	if e.Channel != "tick:NIFTY" || string(e.Data) != `{"price":101}` || e.ChannelSeq != 2 {
		t.Errorf("live envelope = %+v", e)
	}
}

func TestControlMessages(t *testing.T) {
	h := NewHub(nil)
	c := h.Attach("NIFTY")
	ctx := context.Background()

	c.handle(control{Action: "add", Symbols: []string{"BANKNIFTY"}})
	h.Broadcast(ctx, "tick:BANKNIFTY", []byte(`{}`), time.Time{})
	if len(c.C()) != 1 {
		t.Fatalf("after add queued %d, want 1", len(c.C()))
	}
	<-c.C()

	c.handle(control{Action: "unsubscribe", Symbols: []string{"NIFTY"}})
	h.Broadcast(ctx, "tick:NIFTY", []byte(`{}`), time.Time{})
	if len(c.C()) != 0 {
		t.Fatalf("unsubscribed symbol still delivered")
	}

	c.handle(control{Action: "ping", Ping: 42})
	var p pong
	if err := json.Unmarshal(<-c.C(), &p); err != nil || p.Type != "pong" || p.Ping != 42 {
		t.Errorf("pong = %+v, err %v", p, err)
	}

	c.handle(control{Action: "unsubscribe", Symbols: []string{"BANKNIFTY"}})
	h.Broadcast(ctx, "tick:BANKNIFTY", []byte(`{}`), time.Time{})
	h.Broadcast(ctx, "tick:FINNIFTY", []byte(`{}`), time.Time{})
	if len(c.C()) != 0 {
		t.Fatalf("client with no symbols left queued %d envelopes", len(c.C()))
	}

	c.handle(control{Action: "subscribe"})
	h.Broadcast(ctx, "tick:FINNIFTY", []byte(`{}`), time.Time{})
	if len(c.C()) != 1 {
		t.Errorf("empty subscribe should restore every symbol")
	}
}

func TestUnsubscribeFromEverySymbol(t *testing.T) {
	h := NewHub(nil)
	c := h.Attach()
	ctx := context.Background()

	c.handle(control{Action: "unsubscribe", Symbols: []string{"NIFTY"}})
	h.Broadcast(ctx, "tick:NIFTY", []byte(`{}`), time.Time{})
	h.Broadcast(ctx, "tick:BANKNIFTY", []byte(`{}`), time.Time{})
	if got := len(c.C()); got != 1 {
		t.Fatalf("queued %d, want only BANKNIFTY", got)
	}
	if e := decode(t, <-c.C()); e.Channel != "tick:BANKNIFTY" {
		t.Errorf("delivered %s", e.Channel)
	}

	c.handle(control{Action: "add", Symbols: []string{"NIFTY"}})
	h.Broadcast(ctx, "tick:NIFTY", []byte(`{}`), time.Time{})
	if len(c.C()) != 1 {
		t.Error("re-added symbol not delivered")
	}
}
